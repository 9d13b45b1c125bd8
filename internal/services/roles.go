package services

import (
	"context"

	"github.com/placehive/placehive-backend/internal/chat"
	"github.com/placehive/placehive-backend/internal/database"
	"github.com/placehive/placehive-backend/internal/models"
)

// PlaceRolesFor resolves the user's role for every place they own, staff or
// follow. Handlers use it for permission checks outside a chat session.
func PlaceRolesFor(ctx context.Context, userID string) (map[string]models.PlaceRole, error) {
	backend := chat.NewGormBackend(database.DB, nil)
	return backend.Roles(ctx, userID)
}
