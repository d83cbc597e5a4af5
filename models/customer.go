package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is a single customer contact/address record.
type Customer struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	FirstName  string    `json:"firstName" gorm:"not null"`
	LastName   string    `json:"lastName" gorm:"not null"`
	Email      string    `json:"email" gorm:"not null;uniqueIndex:idx_customers_email"`
	Phone      string    `json:"phone" gorm:"not null"`
	Street     string    `json:"street" gorm:"not null"`
	City       string    `json:"city" gorm:"not null"`
	PostalCode string    `json:"postalCode" gorm:"not null"`
	Country    string    `json:"country" gorm:"not null"`
	Company    *string   `json:"company,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;index:idx_customers_created_at"`
	UpdatedAt  time.Time `json:"updatedAt" gorm:"not null"`
}

func (customer *Customer) BeforeCreate(tx *gorm.DB) (err error) {
	// UUID version 4
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	return
}
