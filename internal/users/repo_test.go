package users

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/config"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	"github.com/angelmondragon/licensor-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    8 * 1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.User{}))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func TestRepositoryFindByIdentifier(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, NewUser{
		Username:     "Acme",
		Email:        " Ops@Acme.io ",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleCustomer, created.Role)
	assert.True(t, created.IsActive)
	assert.Equal(t, "ops@acme.io", created.Email)

	byName, err := repo.FindByIdentifier(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	byEmail, err := repo.FindByIdentifier(ctx, "OPS@acme.io")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = repo.FindByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryInactiveFlagPersists(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()
	inactive := false

	created, err := repo.Create(ctx, NewUser{Username: "dormant", Email: "d@x.io", PasswordHash: "h", IsActive: &inactive})
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestRepositoryCountsAndUpdates(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()

	customer, err := repo.Create(ctx, NewUser{Username: "c1", Email: "c1@x.io", PasswordHash: "h"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, NewUser{Username: "c2", Email: "c2@x.io", PasswordHash: "h"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, NewUser{Username: "root", Email: "root@x.io", PasswordHash: "h", Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	customers, err := repo.CountCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), customers)

	admins, err := repo.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)

	exists, err := repo.Exists(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)

	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateLastLogin(ctx, customer.ID, at))
	require.NoError(t, repo.UpdatePasswordHash(ctx, customer.ID, "new-hash"))

	stored, err := repo.FindByID(ctx, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, stored.LastLoginAt.Equal(at))
	assert.Equal(t, "new-hash", stored.PasswordHash)
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()
	cfg := config.BootstrapConfig{AdminUsername: "admin", AdminEmail: "admin@licensor.dev", AdminPassword: "s3cret-pass"}

	user, err := EnsureBootstrapAdmin(ctx, repo, config.BootstrapConfig{}, testPasswordConfig, nil)
	require.NoError(t, err)
	assert.Nil(t, user, "disabled bootstrap creates nothing")

	user, err = EnsureBootstrapAdmin(ctx, repo, cfg, testPasswordConfig, nil)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, enums.UserRoleAdmin, user.Role)

	ok, err := security.VerifyPassword("s3cret-pass", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := EnsureBootstrapAdmin(ctx, repo, cfg, testPasswordConfig, nil)
	require.NoError(t, err)
	assert.Nil(t, again, "second run is a no-op once an admin exists")
}

func TestEnsureBootstrapAdminRejectsTakenUsername(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()
	_, err := repo.Create(ctx, NewUser{Username: "admin", Email: "someone@x.io", PasswordHash: "h"})
	require.NoError(t, err)

	cfg := config.BootstrapConfig{AdminUsername: "admin", AdminEmail: "admin@licensor.dev", AdminPassword: "pw"}
	_, err = EnsureBootstrapAdmin(ctx, repo, cfg, testPasswordConfig, nil)
	assert.Error(t, err)
}
