package chat

import (
	"fmt"
	"time"
)

// EventType discriminates realtime push events.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// PushEvent is the wire-level shape of a realtime push. It is deliberately
// distinct from models.Message: push payloads are partial and loosely typed,
// so nothing from here enters the store without going through the reconciler.
type PushEvent struct {
	Type  EventType `json:"eventType"`
	Table string    `json:"table"`
	Row   PushRow   `json:"row"`
}

// PushRow carries the scalar columns a push payload may include. Relational
// fields (sender profile, place, product, resolved reply) are never pushed;
// inserts are re-fetched in full and updates only patch the whitelisted
// scalars.
type PushRow struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"senderId"`
	RecipientID *string    `json:"recipientId"`
	PlaceID     string     `json:"placeId"`
	Content     *string    `json:"content"`
	ImageURL    *string    `json:"imageUrl"`
	AudioURL    *string    `json:"audioUrl"`
	ProductID   *string    `json:"productId"`
	ReplyToID   *string    `json:"replyTo"`
	EmployeeID  *string    `json:"employeeId"`
	IsRead      *bool      `json:"isRead"`
	CreatedAt   *time.Time `json:"createdAt"`
	ClientID    *string    `json:"clientId"`
}

// Validate is the boundary check applied before an event reaches the store.
func (e *PushEvent) Validate() error {
	switch e.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return fmt.Errorf("push event: unknown event type %q", e.Type)
	}
	if e.Table != "messages" {
		return fmt.Errorf("push event: unexpected table %q", e.Table)
	}
	if e.Row.ID == "" {
		return fmt.Errorf("push event: missing row id")
	}
	return nil
}
