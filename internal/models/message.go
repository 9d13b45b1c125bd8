package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a direct message inside a place conversation. Append-mostly:
// after creation only IsRead and the whitelisted scalar fields ever change.
type Message struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	SenderID string `gorm:"index;type:text;not null" json:"senderId"`
	Sender   User   `gorm:"foreignKey:SenderID" json:"sender,omitempty"`

	// RecipientID may be null for place-directed sends; the partner is then
	// resolved from place ownership.
	RecipientID *string `gorm:"index;type:text" json:"recipientId"`
	Recipient   *User   `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`

	// Every message belongs to exactly one place context.
	PlaceID string `gorm:"index;type:text;not null" json:"placeId"`
	Place   Place  `gorm:"foreignKey:PlaceID" json:"place,omitempty"`

	Content  *string `gorm:"type:text" json:"content"`
	ImageURL *string `json:"imageUrl"`
	AudioURL *string `json:"audioUrl"`

	ProductID *string  `gorm:"index;type:text" json:"productId"`
	Product   *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	// ReplyToID references an earlier message in the same place. ReplyTo is a
	// denormalized preview resolved client-side; it is never persisted.
	ReplyToID *string  `gorm:"index;type:text" json:"replyTo"`
	ReplyTo   *Message `gorm:"-" json:"repliedMessage,omitempty"`

	// EmployeeID identifies which place employee acted as sender for
	// owner-side multi-seat accounts.
	EmployeeID *string        `gorm:"type:text" json:"employeeId"`
	Employee   *PlaceEmployee `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`

	IsRead bool `gorm:"default:false;index" json:"isRead"`

	// ClientID is a sender-generated correlation tag. The row id is assigned
	// on insert; ClientID travels on the push event so a sending client can
	// recognize its own message in the echo.
	ClientID *string `gorm:"index;type:text" json:"clientId"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// HasBody reports whether the message carries any payload. At least one of
// content, image, audio or product reference must be present.
func (m *Message) HasBody() bool {
	return (m.Content != nil && *m.Content != "") ||
		(m.ImageURL != nil && *m.ImageURL != "") ||
		(m.AudioURL != nil && *m.AudioURL != "") ||
		(m.ProductID != nil && *m.ProductID != "")
}
