package licenses

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memDB is an in-memory Transactor and Reader. A transaction holds the
// mutex for its whole run and commits its working copy only on success.
type memDB struct {
	mu         sync.Mutex
	licenses   map[uuid.UUID]models.License
	heartbeats []models.LicenseHeartbeat

	// staleUpdates makes the next N Update calls fail with ErrStaleLicense.
	staleUpdates int
	txCount      int
}

func newMemDB() *memDB {
	return &memDB{licenses: map[uuid.UUID]models.License{}}
}

func (m *memDB) put(lic models.License) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.licenses[lic.ID] = lic
}

func (m *memDB) get(id uuid.UUID) models.License {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.licenses[id]
}

func (m *memDB) heartbeatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heartbeats)
}

func (m *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	tx := &memTx{db: m, licenses: make(map[uuid.UUID]models.License, len(m.licenses))}
	for id, lic := range m.licenses {
		tx.licenses[id] = lic
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.licenses = tx.licenses
	m.heartbeats = append(m.heartbeats, tx.heartbeats...)
	return nil
}

type memTx struct {
	db         *memDB
	licenses   map[uuid.UUID]models.License
	heartbeats []models.LicenseHeartbeat
}

func (t *memTx) FindByKey(_ context.Context, key string) (*models.License, error) {
	for _, lic := range t.licenses {
		if lic.LicenseKey == key {
			out := lic
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (t *memTx) FindByID(_ context.Context, id uuid.UUID) (*models.License, error) {
	lic, ok := t.licenses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &lic, nil
}

func (t *memTx) Insert(_ context.Context, license *models.License) error {
	for _, lic := range t.licenses {
		if lic.LicenseKey == license.LicenseKey {
			return ErrDuplicateKey
		}
	}
	t.licenses[license.ID] = *license
	return nil
}

func (t *memTx) Update(_ context.Context, license *models.License) error {
	if t.db.staleUpdates > 0 {
		t.db.staleUpdates--
		return ErrStaleLicense
	}
	stored, ok := t.licenses[license.ID]
	if !ok || stored.Version != license.Version {
		return ErrStaleLicense
	}
	license.Version++
	t.licenses[license.ID] = *license
	return nil
}

func (t *memTx) AppendHeartbeat(_ context.Context, hb *models.LicenseHeartbeat) error {
	t.heartbeats = append(t.heartbeats, *hb)
	return nil
}

func (m *memDB) FindByID(_ context.Context, id uuid.UUID) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lic, ok := m.licenses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &lic, nil
}

func (m *memDB) List(_ context.Context, q listQuery) ([]models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.License
	for _, lic := range m.licenses {
		if q.status != nil && lic.Status != *q.status {
			continue
		}
		if q.ownerID != nil && lic.OwnerID != *q.ownerID {
			continue
		}
		out = append(out, lic)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > q.limit {
		out = out[:q.limit]
	}
	return out, nil
}

func (m *memDB) ListHeartbeats(_ context.Context, q heartbeatQuery) ([]models.LicenseHeartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LicenseHeartbeat
	for i := len(m.heartbeats) - 1; i >= 0; i-- {
		if m.heartbeats[i].LicenseID == q.licenseID {
			out = append(out, m.heartbeats[i])
		}
	}
	if len(out) > q.limit {
		out = out[:q.limit]
	}
	return out, nil
}

func (m *memDB) CountByStatus(context.Context) (map[enums.LicenseStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[enums.LicenseStatus]int64{}
	for _, status := range enums.LicenseStatuses() {
		out[status] = 0
	}
	for _, lic := range m.licenses {
		out[lic.Status]++
	}
	return out, nil
}

func (m *memDB) CountExpiringBetween(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, lic := range m.licenses {
		if lic.Status != enums.LicenseStatusActive || lic.PlanType.IsPerpetual() || lic.ExpireDate == nil {
			continue
		}
		if !lic.ExpireDate.Before(from) && !lic.ExpireDate.After(to) {
			n++
		}
	}
	return n, nil
}

func (m *memDB) FindOverdueIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, lic := range m.licenses {
		if lic.Status != enums.LicenseStatusPending && lic.Status != enums.LicenseStatusActive {
			continue
		}
		if lic.PlanType.IsPerpetual() || lic.ExpireDate == nil || !lic.ExpireDate.Before(now) {
			continue
		}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *memDB) DeleteHeartbeatsBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.heartbeats[:0]
	var deleted int64
	for _, hb := range m.heartbeats {
		if hb.CreatedAt.Before(cutoff) && deleted < int64(limit) {
			deleted++
			continue
		}
		kept = append(kept, hb)
	}
	m.heartbeats = kept
	return deleted, nil
}

type ownersStub struct {
	known     map[uuid.UUID]bool
	customers int64
}

func (o ownersStub) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return o.known[id], nil
}

func (o ownersStub) CountCustomers(context.Context) (int64, error) {
	return o.customers, nil
}
