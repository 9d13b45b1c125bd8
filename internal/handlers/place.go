package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/placehive/placehive-backend/internal/database"
	"github.com/placehive/placehive-backend/internal/models"
	"github.com/placehive/placehive-backend/internal/services"
	"github.com/placehive/placehive-backend/pkg/utils"
)

// SearchPlaces lists places filtered by name and city.
func SearchPlaces(c *gin.Context) {
	query := database.DB.Model(&models.Place{})

	if q := c.Query("q"); q != "" {
		pattern := "%" + utils.EscapeSQLWildcards(q) + "%"
		query = query.Where("name LIKE ?", pattern)
	}
	if city := c.Query("city"); city != "" {
		query = query.Where("city = ?", city)
	}

	var places []models.Place
	if err := query.Order("created_at DESC").Limit(50).Find(&places).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search places"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"places": places})
}

// GetPlace returns a single place profile.
func GetPlace(c *gin.Context) {
	placeID := c.Param("placeId")
	if !utils.IsUUID(placeID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid place id"})
		return
	}

	var place models.Place
	if err := database.DB.First(&place, "id = ?", placeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Place not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load place"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"place": place})
}

// GetMyPlaces returns the places the authenticated user owns or staffs,
// with the role attached so clients know which side of a chat they are on.
func GetMyPlaces(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	roles, err := services.PlaceRolesFor(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load places"})
		return
	}

	ids := make([]string, 0, len(roles))
	for placeID, role := range roles {
		if role.ActsForPlace() {
			ids = append(ids, placeID)
		}
	}

	places := make([]models.Place, 0)
	if len(ids) > 0 {
		if err := database.DB.Where("id IN ?", ids).Find(&places).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load places"})
			return
		}
	}

	out := make([]gin.H, 0, len(places))
	for i := range places {
		out = append(out, gin.H{
			"place": places[i],
			"role":  roles[places[i].ID].Kind,
		})
	}
	c.JSON(http.StatusOK, gin.H{"places": out})
}

// FollowPlace records the user as a follower; following is what lets a
// client open a chat with the place.
func FollowPlace(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	placeID := c.Param("placeId")

	var place models.Place
	if err := database.DB.First(&place, "id = ?", placeID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Place not found"})
		return
	}
	if place.OwnerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot follow your own place"})
		return
	}

	follow := models.PlaceFollow{FollowerID: userID, PlaceID: placeID}
	if err := database.DB.FirstOrCreate(&follow, models.PlaceFollow{FollowerID: userID, PlaceID: placeID}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to follow place"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnfollowPlace removes the follow edge.
func UnfollowPlace(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	placeID := c.Param("placeId")

	if err := database.DB.Where("follower_id = ? AND place_id = ?", userID, placeID).
		Delete(&models.PlaceFollow{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unfollow place"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetPlaceProducts lists a place's products; chats reference these when a
// message is sent about a product.
func GetPlaceProducts(c *gin.Context) {
	placeID := c.Param("placeId")

	var products []models.Product
	if err := database.DB.Where("place_id = ?", placeID).Order("created_at DESC").Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}
