package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/placehive/placehive-backend/internal/config"
	"github.com/placehive/placehive-backend/internal/database"
	"github.com/placehive/placehive-backend/internal/models"
	"github.com/placehive/placehive-backend/pkg/utils"
)

func setupAuthTest(t *testing.T) {
	t.Helper()
	config.AppConfig = &config.Config{JWTSecret: "test-secret"}
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	database.DB = db
	database.DB.AutoMigrate(&models.User{})
}

func runAuthRequest(token string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.MustGet("userId")})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	setupAuthTest(t)
	database.DB.Create(&models.User{ID: "auth_user1", Username: "auth_user1", Email: "auth1@example.com"})

	token, err := utils.GenerateToken("auth_user1")
	require.NoError(t, err)

	w := runAuthRequest(token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "auth_user1")
}

func TestAuthMiddleware_RejectsGarbageToken(t *testing.T) {
	setupAuthTest(t)

	w := runAuthRequest("not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsMissingHeader(t *testing.T) {
	setupAuthTest(t)

	w := runAuthRequest("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsUnknownUser(t *testing.T) {
	setupAuthTest(t)

	token, err := utils.GenerateToken("ghost_user")
	require.NoError(t, err)

	w := runAuthRequest(token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsBlockedUser(t *testing.T) {
	setupAuthTest(t)
	database.DB.Create(&models.User{ID: "blocked_user", Username: "blocked_user", Email: "blocked@example.com", IsBlocked: true})

	token, err := utils.GenerateToken("blocked_user")
	require.NoError(t, err)

	w := runAuthRequest(token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
