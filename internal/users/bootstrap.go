package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/licensor-backend/pkg/config"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
	"github.com/angelmondragon/licensor-backend/pkg/security"
	"gorm.io/gorm"
)

type bootstrapRepository interface {
	CountAdmins(ctx context.Context) (int64, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	Create(ctx context.Context, dto NewUser) (*models.User, error)
}

// EnsureBootstrapAdmin creates the configured admin account on first start.
// It is a no-op when bootstrap is disabled or any admin already exists.
func EnsureBootstrapAdmin(ctx context.Context, repo bootstrapRepository, cfg config.BootstrapConfig, pwCfg config.PasswordConfig, logg *logger.Logger) (*models.User, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	admins, err := repo.CountAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("count admins: %w", err)
	}
	if admins > 0 {
		return nil, nil
	}
	if _, err := repo.FindByIdentifier(ctx, cfg.AdminUsername); err == nil {
		return nil, fmt.Errorf("bootstrap username %q is taken by a non-admin account", cfg.AdminUsername)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup bootstrap admin: %w", err)
	}

	hash, err := security.HashPassword(cfg.AdminPassword, pwCfg)
	if err != nil {
		return nil, fmt.Errorf("hash bootstrap password: %w", err)
	}
	user, err := repo.Create(ctx, NewUser{
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         enums.UserRoleAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("create bootstrap admin: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithUserID(ctx, user.ID.String()), "bootstrap admin created")
	}
	return user, nil
}
