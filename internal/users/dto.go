package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
)

// UserDTO is the account as returned by /auth/me and login. Credentials are
// never part of it.
type UserDTO struct {
	ID          uuid.UUID      `json:"id"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	Role        enums.UserRole `json:"role"`
	IsActive    bool           `json:"is_active"`
	CompanyName *string        `json:"company_name,omitempty"`
	ContactName *string        `json:"contact_name,omitempty"`
	Phone       *string        `json:"phone,omitempty"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewUser is the input to Repository.Create. Role defaults to customer and
// IsActive to true.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         enums.UserRole
	CompanyName  *string
	ContactName  *string
	Phone        *string
	IsActive     *bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	dto := UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	dto.CompanyName, dto.ContactName, dto.Phone = u.CompanyName, u.ContactName, u.Phone
	return &dto
}

func (n NewUser) model() *models.User {
	u := &models.User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(n.Username),
		Email:        strings.ToLower(strings.TrimSpace(n.Email)),
		PasswordHash: n.PasswordHash,
		Role:         enums.UserRoleCustomer,
		IsActive:     true,
		CompanyName:  n.CompanyName,
		ContactName:  n.ContactName,
		Phone:        n.Phone,
	}
	if n.Role != "" {
		u.Role = n.Role
	}
	if n.IsActive != nil {
		u.IsActive = *n.IsActive
	}
	return u
}
