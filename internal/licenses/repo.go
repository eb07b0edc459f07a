package licenses

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/db"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm-backed License Store, Heartbeat Log and Reader.
type Repository struct {
	db   *gorm.DB
	lock bool
}

// NewRepository constructs a license repository tied to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// forUpdate returns a copy whose finds lock the selected row.
func (r *Repository) forUpdate() *Repository {
	return &Repository{db: r.db, lock: true}
}

func (r *Repository) query(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	if r.lock && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// FindByKey loads a license by its key.
func (r *Repository) FindByKey(ctx context.Context, licenseKey string) (*models.License, error) {
	var license models.License
	if err := r.query(ctx).Where("license_key = ?", licenseKey).First(&license).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

// FindByID loads a license by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.License, error) {
	var license models.License
	if err := r.query(ctx).Where("id = ?", id).First(&license).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

// Insert creates a license row.
func (r *Repository) Insert(ctx context.Context, license *models.License) error {
	if err := r.db.WithContext(ctx).Create(license).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// Update performs the optimistic write described on Store.
func (r *Repository) Update(ctx context.Context, license *models.License) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("id = ? AND version = ?", license.ID, license.Version).
		Updates(map[string]any{
			"status":          license.Status,
			"max_users":       license.MaxUsers,
			"machine_id":      license.MachineID,
			"activated_at":    license.ActivatedAt,
			"expire_date":     license.ExpireDate,
			"last_heartbeat":  license.LastHeartbeat,
			"heartbeat_count": license.HeartbeatCount,
			"current_token":   license.CurrentToken,
			"notes":           license.Notes,
			"version":         license.Version + 1,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleLicense
	}
	license.Version++
	license.UpdatedAt = now
	return nil
}

// AppendHeartbeat inserts a heartbeat log entry.
func (r *Repository) AppendHeartbeat(ctx context.Context, hb *models.LicenseHeartbeat) error {
	return r.db.WithContext(ctx).Create(hb).Error
}

// List returns licenses newest first using cursor pagination.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.License, error) {
	query := r.db.WithContext(ctx).Model(&models.License{})
	if opts.status != nil {
		query = query.Where("status = ?", string(*opts.status))
	}
	if opts.ownerID != nil {
		query = query.Where("owner_id = ?", *opts.ownerID)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.License
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListHeartbeats returns one license's heartbeat entries newest first.
func (r *Repository) ListHeartbeats(ctx context.Context, opts heartbeatQuery) ([]models.LicenseHeartbeat, error) {
	query := r.db.WithContext(ctx).Model(&models.LicenseHeartbeat{}).Where("license_id = ?", opts.licenseID)
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}
	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.LicenseHeartbeat
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByStatus returns the number of licenses per status. Statuses with no
// rows are present with a zero count.
func (r *Repository) CountByStatus(ctx context.Context) (map[enums.LicenseStatus]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.License{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[enums.LicenseStatus]int64, len(rows))
	for _, status := range enums.LicenseStatuses() {
		out[status] = 0
	}
	for _, row := range rows {
		out[enums.LicenseStatus(row.Status)] = row.Total
	}
	return out, nil
}

// CountExpiringBetween counts active, expiring licenses whose expire date
// falls in [from, to].
func (r *Repository) CountExpiringBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("status = ?", string(enums.LicenseStatusActive)).
		Where("plan_type NOT IN ?", perpetualPlans()).
		Where("expire_date IS NOT NULL AND expire_date >= ? AND expire_date <= ?", from, to).
		Count(&total).Error
	return total, err
}

// FindOverdueIDs returns pending or active, non-perpetual licenses whose
// expire date is before now, oldest expiry first.
func (r *Repository) FindOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("status IN ?", []string{string(enums.LicenseStatusPending), string(enums.LicenseStatusActive)}).
		Where("plan_type NOT IN ?", perpetualPlans()).
		Where("expire_date IS NOT NULL AND expire_date < ?", now).
		Order("expire_date ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// DeleteHeartbeatsBefore removes up to limit heartbeat entries created before cutoff.
func (r *Repository) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		"DELETE FROM license_heartbeats WHERE id IN (SELECT id FROM license_heartbeats WHERE created_at < ? ORDER BY created_at LIMIT ?)",
		cutoff, limit,
	)
	return res.RowsAffected, res.Error
}

func perpetualPlans() []string {
	var out []string
	for _, plan := range enums.PlanTypes() {
		if plan.IsPerpetual() {
			out = append(out, string(plan))
		}
	}
	return out
}

// GormTransactor runs engine transactions on a db.Client.
type GormTransactor struct {
	client *db.Client
}

// NewGormTransactor wraps client.
func NewGormTransactor(client *db.Client) (*GormTransactor, error) {
	if client == nil {
		return nil, errors.New("db client required")
	}
	return &GormTransactor{client: client}, nil
}

// WithinTx implements Transactor.
func (t *GormTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return t.client.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(ctx, NewRepository(tx).forUpdate())
	})
}
