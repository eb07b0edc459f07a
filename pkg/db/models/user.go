package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/pkg/enums"
)

// User is a credential-store account: an admin or a license-owning customer.
type User struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Username     string         `gorm:"column:username;not null;uniqueIndex"`
	Email        string         `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash string         `gorm:"column:password_hash;not null"`
	Role         enums.UserRole `gorm:"column:role;not null;default:'customer'"`
	IsActive     bool           `gorm:"column:is_active;not null"`
	CompanyName  *string        `gorm:"column:company_name"`
	ContactName  *string        `gorm:"column:contact_name"`
	Phone        *string        `gorm:"column:phone"`
	LastLoginAt  *time.Time     `gorm:"column:last_login_at"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
