package licenses

import (
	"context"
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	"github.com/google/uuid"
)

// Store is the transactional view of the License Store and Heartbeat Log.
// Finds inside a transaction take a row lock where the backend supports it.
type Store interface {
	FindByKey(ctx context.Context, licenseKey string) (*models.License, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.License, error)
	Insert(ctx context.Context, license *models.License) error
	// Update writes every mutable column when the stored version still
	// equals license.Version, then bumps license.Version. Otherwise it
	// returns ErrStaleLicense.
	Update(ctx context.Context, license *models.License) error
	AppendHeartbeat(ctx context.Context, hb *models.LicenseHeartbeat) error
}

// Transactor runs fn against a Store bound to a single transaction. fn's
// writes commit only when it returns nil.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// Reader serves the admin and portal read paths and the maintenance jobs.
type Reader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.License, error)
	List(ctx context.Context, q listQuery) ([]models.License, error)
	ListHeartbeats(ctx context.Context, q heartbeatQuery) ([]models.LicenseHeartbeat, error)
	CountByStatus(ctx context.Context) (map[enums.LicenseStatus]int64, error)
	CountExpiringBetween(ctx context.Context, from, to time.Time) (int64, error)
	FindOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type ownerLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	CountCustomers(ctx context.Context) (int64, error)
}
