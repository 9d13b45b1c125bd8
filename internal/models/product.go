package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a listed item a place sells. Products can be attached to chat
// messages as a reference, e.g. "is this still available?".
type Product struct {
	ID        string         `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PlaceID string `gorm:"index;type:text;not null" json:"placeId"`
	Place   Place  `gorm:"foreignKey:PlaceID" json:"-"`

	Name        string  `gorm:"not null" json:"name"`
	Description string  `gorm:"type:text" json:"description"`
	Price       float64 `json:"price"`
	Currency    string  `gorm:"default:'USD'" json:"currency"`
	ImageURL    string  `json:"imageUrl"`
	InStock     bool    `gorm:"default:true" json:"inStock"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}
