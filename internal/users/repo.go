package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
)

// Repository is the gorm-backed account store. Lookups return
// gorm.ErrRecordNotFound for missing rows; callers map it with db.IsNotFound.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.User{})
}

func (r *Repository) Create(ctx context.Context, in NewUser) (*models.User, error) {
	user := in.model()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByIdentifier matches username or email case-insensitively.
func (r *Repository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	ident := strings.ToLower(strings.TrimSpace(identifier))
	return r.first(ctx, "LOWER(username) = ? OR LOWER(email) = ?", ident, ident)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, args...).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	err := r.table(ctx).Where("id = ?", id).Limit(1).Count(&n).Error
	return n > 0, err
}

func (r *Repository) CountCustomers(ctx context.Context) (int64, error) {
	return r.countRole(ctx, enums.UserRoleCustomer)
}

func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	return r.countRole(ctx, enums.UserRoleAdmin)
}

func (r *Repository) countRole(ctx context.Context, role enums.UserRole) (int64, error) {
	var n int64
	err := r.table(ctx).Where("role = ?", string(role)).Count(&n).Error
	return n, err
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.setColumn(ctx, id, "last_login_at", at)
}

// UpdatePasswordHash stores an upgraded hash after a legacy bcrypt login.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.setColumn(ctx, id, "password_hash", hash)
}

// setColumn skips hooks and updated_at, matching a credential side write.
func (r *Repository) setColumn(ctx context.Context, id uuid.UUID, column string, value any) error {
	return r.table(ctx).Where("id = ?", id).UpdateColumn(column, value).Error
}
