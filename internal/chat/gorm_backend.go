package chat

import (
	"context"

	"gorm.io/gorm"

	"github.com/placehive/placehive-backend/internal/models"
)

// EventPublisher pushes change events onto the realtime feed after a
// mutation lands. Nil is allowed (tests, single-process setups without
// redis).
type EventPublisher interface {
	PublishInsert(ctx context.Context, m *models.Message) error
	PublishUpdate(ctx context.Context, rows []PushRow) error
	PublishDelete(ctx context.Context, m *models.Message) error
}

// GormBackend is the production Backend: Postgres through GORM, with change
// events mirrored to the realtime feed the reconcilers consume.
type GormBackend struct {
	db     *gorm.DB
	events EventPublisher
}

func NewGormBackend(db *gorm.DB, events EventPublisher) *GormBackend {
	return &GormBackend{db: db, events: events}
}

func (b *GormBackend) withJoins(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Sender").
		Preload("Recipient").
		Preload("Place").
		Preload("Product")
}

func (b *GormBackend) ListMessages(ctx context.Context, userID string, ownedPlaces []string) ([]models.Message, error) {
	var messages []models.Message
	q := b.db.WithContext(ctx)
	if len(ownedPlaces) > 0 {
		q = q.Where("sender_id = ? OR recipient_id = ? OR place_id IN ?", userID, userID, ownedPlaces)
	} else {
		q = q.Where("sender_id = ? OR recipient_id = ?", userID, userID)
	}
	err := b.withJoins(q).Order("created_at asc").Find(&messages).Error
	return messages, err
}

func (b *GormBackend) FetchMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := b.withJoins(b.db.WithContext(ctx)).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (b *GormBackend) FetchMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	var messages []models.Message
	err := b.withJoins(b.db.WithContext(ctx)).Where("id IN ?", ids).Find(&messages).Error
	return messages, err
}

func (b *GormBackend) InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	if !m.HasBody() {
		return nil, ErrNothingToSend
	}
	if err := b.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	full, err := b.FetchMessage(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if b.events != nil {
		if err := b.events.PublishInsert(ctx, full); err != nil {
			// The row is committed; a lost push only delays peers until
			// their next full load.
			return full, nil
		}
	}
	return full, nil
}

func (b *GormBackend) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var rows []models.Message
	if err := b.db.WithContext(ctx).Select("id", "sender_id", "recipient_id", "place_id").
		Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return err
	}
	if err := b.db.WithContext(ctx).Model(&models.Message{}).
		Where("id IN ?", ids).Update("is_read", true).Error; err != nil {
		return err
	}
	if b.events != nil {
		read := true
		pushRows := make([]PushRow, 0, len(rows))
		for i := range rows {
			pushRows = append(pushRows, PushRow{
				ID:          rows[i].ID,
				SenderID:    rows[i].SenderID,
				RecipientID: rows[i].RecipientID,
				PlaceID:     rows[i].PlaceID,
				IsRead:      &read,
			})
		}
		_ = b.events.PublishUpdate(ctx, pushRows)
	}
	return nil
}

// DeleteMessage removes a message row and pushes the delete event. There is
// no client-side delete flow; peers only ever see deletion as a remote event
// to reconcile.
func (b *GormBackend) DeleteMessage(ctx context.Context, id string) error {
	m, err := b.FetchMessage(ctx, id)
	if err != nil {
		return err
	}
	if err := b.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", id).Error; err != nil {
		return err
	}
	if b.events != nil {
		_ = b.events.PublishDelete(ctx, m)
	}
	return nil
}

func (b *GormBackend) OwnedPlaceIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := b.db.WithContext(ctx).Model(&models.Place{}).
		Where("owner_id = ?", userID).Pluck("id", &ids).Error
	return ids, err
}

// Roles resolves the user's role for every place they own, staff or follow.
// Ownership wins over employment, employment over following.
func (b *GormBackend) Roles(ctx context.Context, userID string) (map[string]models.PlaceRole, error) {
	roles := make(map[string]models.PlaceRole)

	var follows []models.PlaceFollow
	if err := b.db.WithContext(ctx).Where("follower_id = ?", userID).Find(&follows).Error; err != nil {
		return nil, err
	}
	for i := range follows {
		roles[follows[i].PlaceID] = models.PlaceRole{Kind: models.PlaceRoleFollower}
	}

	var seats []models.PlaceEmployee
	if err := b.db.WithContext(ctx).Where("user_id = ?", userID).Find(&seats).Error; err != nil {
		return nil, err
	}
	for i := range seats {
		roles[seats[i].PlaceID] = models.PlaceRole{
			Kind:             models.PlaceRoleEmployee,
			EmployeeID:       seats[i].ID,
			CanMessage:       seats[i].CanMessage,
			CanPost:          seats[i].CanPost,
			CanManageProduct: seats[i].CanManageProduct,
		}
	}

	owned, err := b.OwnedPlaceIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, placeID := range owned {
		roles[placeID] = models.PlaceRole{Kind: models.PlaceRoleOwner}
	}

	return roles, nil
}
