package licenses

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/db"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/licensor-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLicensesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func seedLicense(t *testing.T, conn *gorm.DB, mutate func(*models.License)) models.License {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lic := models.License{
		ID:         uuid.New(),
		LicenseKey: "LK-MON-" + strings.ToUpper(uuid.NewString()[:8]),
		PlanType:   enums.PlanTypeMonthly,
		Status:     enums.LicenseStatusPending,
		OwnerID:    uuid.New(),
		MaxUsers:   5,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if mutate != nil {
		mutate(&lic)
	}
	require.NoError(t, NewRepository(conn).Insert(context.Background(), &lic))
	return lic
}

func TestRepositoryInsertRejectsDuplicateKey(t *testing.T) {
	conn := setupLicensesTestDB(t)
	repo := NewRepository(conn)
	lic := seedLicense(t, conn, nil)

	dup := lic
	dup.ID = uuid.New()
	err := repo.Insert(context.Background(), &dup)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestRepositoryUpdateIsOptimistic(t *testing.T) {
	conn := setupLicensesTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	lic := seedLicense(t, conn, nil)

	first, err := repo.FindByKey(ctx, lic.LicenseKey)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, lic.ID)
	require.NoError(t, err)

	machine := "machine-a"
	first.Status = enums.LicenseStatusActive
	first.MachineID = &machine
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	other := "machine-b"
	second.MachineID = &other
	assert.ErrorIs(t, repo.Update(ctx, second), ErrStaleLicense)

	stored, err := repo.FindByID(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseStatusActive, stored.Status)
	require.NotNil(t, stored.MachineID)
	assert.Equal(t, "machine-a", *stored.MachineID)

	stored.MachineID = nil
	require.NoError(t, repo.Update(ctx, stored))
	cleared, err := repo.FindByID(ctx, lic.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.MachineID)
	assert.Equal(t, int64(3), cleared.Version)
}

func TestRepositoryFindMissing(t *testing.T) {
	conn := setupLicensesTestDB(t)
	_, err := NewRepository(conn).FindByKey(context.Background(), "LK-NONE")
	assert.True(t, db.IsNotFound(err))
}

func TestRepositoryListFiltersAndPaginates(t *testing.T) {
	conn := setupLicensesTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		i := i
		seedLicense(t, conn, func(l *models.License) {
			l.OwnerID = owner
			l.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
	}
	seedLicense(t, conn, func(l *models.License) { l.Status = enums.LicenseStatusRevoked })

	rows, err := repo.List(ctx, listQuery{ownerID: &owner, limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))

	cursorRows, err := repo.List(ctx, listQuery{
		ownerID: &owner,
		limit:   10,
		cursor:  &pkgpagination.Cursor{CreatedAt: rows[1].CreatedAt, ID: rows[1].ID},
	})
	require.NoError(t, err)
	require.Len(t, cursorRows, 1)

	revoked := enums.LicenseStatusRevoked
	rows, err = repo.List(ctx, listQuery{status: &revoked, limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRepositoryCountsAndOverdue(t *testing.T) {
	conn := setupLicensesTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	soon := now.Add(48 * time.Hour)
	overdue := seedLicense(t, conn, func(l *models.License) {
		l.Status = enums.LicenseStatusActive
		l.ExpireDate = &past
	})
	seedLicense(t, conn, func(l *models.License) {
		l.Status = enums.LicenseStatusActive
		l.ExpireDate = &soon
	})
	seedLicense(t, conn, func(l *models.License) {
		l.PlanType = enums.PlanTypeLifetime
		l.ExpireDate = &past
	})
	seedLicense(t, conn, func(l *models.License) {
		l.Status = enums.LicenseStatusExpired
		l.ExpireDate = &past
	})

	ids, err := repo.FindOverdueIDs(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{overdue.ID}, ids)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[enums.LicenseStatusActive])
	assert.Equal(t, int64(1), counts[enums.LicenseStatusPending])
	assert.Equal(t, int64(1), counts[enums.LicenseStatusExpired])
	assert.Equal(t, int64(0), counts[enums.LicenseStatusRevoked])

	expiring, err := repo.CountExpiringBetween(ctx, now, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expiring)
}

func TestRepositoryHeartbeats(t *testing.T) {
	conn := setupLicensesTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	lic := seedLicense(t, conn, nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.AppendHeartbeat(ctx, &models.LicenseHeartbeat{
			ID:        uuid.New(),
			LicenseID: lic.ID,
			MachineID: "m",
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}

	rows, err := repo.ListHeartbeats(ctx, heartbeatQuery{licenseID: lic.ID, limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.True(t, rows[0].CreatedAt.After(rows[3].CreatedAt))

	deleted, err := repo.DeleteHeartbeatsBefore(ctx, base.Add(36*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = repo.DeleteHeartbeatsBefore(ctx, base.Add(36*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	rows, err = repo.ListHeartbeats(ctx, heartbeatQuery{licenseID: lic.ID, limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGormTransactorCommitsThroughStore(t *testing.T) {
	conn := setupLicensesTestDB(t)
	tx, err := NewGormTransactor(db.Wrap(conn))
	require.NoError(t, err)
	lic := seedLicense(t, conn, nil)

	err = tx.WithinTx(context.Background(), func(ctx context.Context, store Store) error {
		row, err := store.FindByKey(ctx, lic.LicenseKey)
		if err != nil {
			return err
		}
		row.Notes = "touched"
		return store.Update(ctx, row)
	})
	require.NoError(t, err)

	stored, err := NewRepository(conn).FindByID(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, "touched", stored.Notes)

	_, err = NewGormTransactor(nil)
	assert.Error(t, err)
}
