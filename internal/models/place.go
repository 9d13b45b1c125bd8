package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Place is a business listing. It owns posts and products and is the
// addressable target of conversations from a client's perspective.
type Place struct {
	ID        string         `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"index" json:"category"`
	Logo        string `json:"logo"`
	Address     string `json:"address"`
	City        string `gorm:"index" json:"city"`

	OwnerID string `gorm:"index;type:text;not null" json:"ownerId"`
	Owner   User   `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`

	Employees []PlaceEmployee `gorm:"foreignKey:PlaceID" json:"employees,omitempty"`
}

func (p *Place) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

// PlaceEmployee is a delegated staff seat on a place. Employees can act on
// behalf of the place in conversations; messages they send carry their id.
type PlaceEmployee struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	PlaceID string `gorm:"uniqueIndex:idx_place_employee;type:text;not null" json:"placeId"`
	Place   Place  `gorm:"foreignKey:PlaceID" json:"-"`

	UserID string `gorm:"uniqueIndex:idx_place_employee;type:text;not null" json:"userId"`
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`

	CanMessage       bool `gorm:"default:true" json:"canMessage"`
	CanPost          bool `gorm:"default:false" json:"canPost"`
	CanManageProduct bool `gorm:"default:false" json:"canManageProducts"`
}

func (e *PlaceEmployee) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return
}

// PlaceFollow represents a client following a place
type PlaceFollow struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	FollowerID string `gorm:"uniqueIndex:idx_follower_place;type:text;not null" json:"followerId"`
	Follower   User   `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`

	PlaceID string `gorm:"uniqueIndex:idx_follower_place;type:text;not null" json:"placeId"`
	Place   Place  `gorm:"foreignKey:PlaceID" json:"-"`
}

func (f *PlaceFollow) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return
}
