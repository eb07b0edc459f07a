package licenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/config"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
	"github.com/angelmondragon/licensor-backend/pkg/metrics"
	pkgpagination "github.com/angelmondragon/licensor-backend/pkg/pagination"
	"github.com/angelmondragon/licensor-backend/pkg/security"
	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	keyInsertAttempts     = 3
	heartbeatPurgeBatch   = 1000
	defaultExpirySweepCap = 500
)

// Service is the License Lifecycle Engine plus its admin read paths.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.License, error)
	Activate(ctx context.Context, input ActivateInput) (*ActivationResult, error)
	Verify(ctx context.Context, input VerifyInput) (*VerifyResult, error)
	Deactivate(ctx context.Context, input DeactivateInput) (*models.License, error)
	Revoke(ctx context.Context, id uuid.UUID, reason string) (*models.License, error)
	Extend(ctx context.Context, id uuid.UUID, days int) (*models.License, error)
	UnbindDevice(ctx context.Context, id uuid.UUID) (*models.License, error)

	Get(ctx context.Context, id uuid.UUID) (*models.License, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	ListHeartbeats(ctx context.Context, id uuid.UUID, params pkgpagination.Params) (*HeartbeatList, error)
	Dashboard(ctx context.Context) (*DashboardStats, error)

	ExpireOverdue(ctx context.Context) (int, error)
	PurgeHeartbeats(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CreateInput describes a new license. A nil ExpireDate takes the plan's
// default duration; MaxUsers <= 0 takes the plan's default seat count.
type CreateInput struct {
	PlanType   enums.PlanType
	OwnerID    uuid.UUID
	MaxUsers   int
	ExpireDate *time.Time
	Notes      string
}

type ActivateInput struct {
	LicenseKey string
	MachineID  string
}

// ActivationResult carries the bound license and the first liveness token.
type ActivationResult struct {
	License models.License
	Token   string
}

type VerifyInput struct {
	LicenseKey string
	MachineID  string
	ClientIP   string
	AppVersion string
}

// VerifyResult is returned on a successful heartbeat. RemainingDays is nil
// for licenses that never expire.
type VerifyResult struct {
	Valid         bool
	PlanType      enums.PlanType
	ExpireDate    *time.Time
	RemainingDays *int
	MaxUsers      int
	Token         string
}

type DeactivateInput struct {
	LicenseKey string
	MachineID  string
}

// ServiceParams wires the engine.
type ServiceParams struct {
	Transactor Transactor
	Reader     Reader
	Owners     ownerLookup
	Config     config.LicenseConfig
	Metrics    *metrics.LicenseMetrics
	Logger     *logger.Logger
	Now        func() time.Time
	NewToken   func() (string, error)
}

type service struct {
	tx            Transactor
	reader        Reader
	owners        ownerLookup
	metrics       *metrics.LicenseMetrics
	logg          *logger.Logger
	keyPrefix     string
	retryAttempts uint
	retryDelay    time.Duration
	sweepBatch    int
	expiringSoon  time.Duration
	now           func() time.Time
	newToken      func() (string, error)
	newKey        func(prefix string, plan enums.PlanType) (string, error)
}

// NewService validates params and builds the engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Transactor == nil {
		return nil, fmt.Errorf("license transactor required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("license reader required")
	}
	if params.Owners == nil {
		return nil, fmt.Errorf("owner lookup required")
	}
	svc := &service{
		tx:            params.Transactor,
		reader:        params.Reader,
		owners:        params.Owners,
		metrics:       params.Metrics,
		logg:          params.Logger,
		keyPrefix:     params.Config.KeyPrefix,
		retryAttempts: params.Config.TxRetryAttempts,
		retryDelay:    params.Config.TxRetryDelay,
		sweepBatch:    params.Config.ExpirySweepBatch,
		expiringSoon:  params.Config.ExpiringSoonWindow(),
		now:           params.Now,
		newToken:      params.NewToken,
		newKey:        generateKey,
	}
	if svc.retryAttempts == 0 {
		svc.retryAttempts = 3
	}
	if svc.sweepBatch <= 0 {
		svc.sweepBatch = defaultExpirySweepCap
	}
	if svc.expiringSoon <= 0 {
		svc.expiringSoon = 7 * 24 * time.Hour
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.newToken == nil {
		svc.newToken = func() (string, error) { return security.RandomURLToken(security.DefaultTokenBytes) }
	}
	return svc, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (lic *models.License, err error) {
	defer func() { s.observe(ctx, "create", err) }()

	if !input.PlanType.IsValid() {
		return nil, errInvalid("invalid plan_type")
	}
	if input.OwnerID == uuid.Nil {
		return nil, errInvalid("owner_id is required")
	}
	ok, err := s.owners.Exists(ctx, input.OwnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup owner")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "owner not found")
	}

	now := s.now()
	expire := input.ExpireDate
	if expire == nil {
		if days := input.PlanType.DefaultDurationDays(); days > 0 {
			at := now.Add(time.Duration(days) * 24 * time.Hour)
			expire = &at
		}
	} else {
		at := expire.UTC()
		expire = &at
	}
	maxUsers := input.MaxUsers
	if maxUsers <= 0 {
		maxUsers = input.PlanType.DefaultMaxUsers()
	}

	err = retry.Do(
		func() error {
			key, err := s.newKey(s.keyPrefix, input.PlanType)
			if err != nil {
				return retry.Unrecoverable(pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate license key"))
			}
			row := &models.License{
				ID:         uuid.New(),
				LicenseKey: key,
				PlanType:   input.PlanType,
				Status:     enums.LicenseStatusPending,
				OwnerID:    input.OwnerID,
				MaxUsers:   maxUsers,
				ExpireDate: expire,
				Notes:      strings.TrimSpace(input.Notes),
				Version:    1,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.tx.WithinTx(ctx, func(ctx context.Context, store Store) error {
				return store.Insert(ctx, row)
			}); err != nil {
				return err
			}
			lic = row
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(keyInsertAttempts),
		retry.Delay(0),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrDuplicateKey) }),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, errStorage(err, "create license")
	}
	s.info(ctx, lic, "license.created")
	return lic, nil
}

func (s *service) Activate(ctx context.Context, input ActivateInput) (res *ActivationResult, err error) {
	defer func() { s.observe(ctx, "activate", err) }()

	key := NormalizeKey(input.LicenseKey)
	machine := strings.TrimSpace(input.MachineID)
	if key == "" {
		return nil, errInvalid("license_key is required")
	}
	if machine == "" {
		return nil, errInvalid("machine_id is required")
	}

	var outcome error
	err = s.inTx(ctx, func(ctx context.Context, store Store) error {
		res, outcome = nil, nil

		lic, err := findByKey(ctx, store, key)
		if err != nil {
			return err
		}
		now := s.now()

		if lic.Status == enums.LicenseStatusRevoked {
			return errRevoked()
		}
		if lic.Status == enums.LicenseStatusExpired {
			return errExpired(lic.ExpireDate)
		}
		if s.overdue(lic, now) {
			if err := s.expire(ctx, store, lic); err != nil {
				return err
			}
			outcome = errExpired(lic.ExpireDate)
			return nil
		}
		if lic.Bound() && !lic.BoundTo(machine) {
			return errDeviceConflict()
		}

		next, err := Transition(lic.Status, enums.LicenseEventActivate)
		if err != nil {
			return err
		}
		token, err := s.newToken()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue token")
		}
		lic.Status = next
		lic.MachineID = &machine
		lic.ActivatedAt = &now
		lic.LastHeartbeat = &now
		lic.CurrentToken = &token
		if err := store.Update(ctx, lic); err != nil {
			return err
		}
		res = &ActivationResult{License: *lic, Token: token}
		return nil
	})
	if err != nil {
		return nil, errStorage(err, "activate license")
	}
	if outcome != nil {
		return nil, outcome
	}
	s.info(ctx, &res.License, "license.activated")
	return res, nil
}

func (s *service) Verify(ctx context.Context, input VerifyInput) (res *VerifyResult, err error) {
	defer func() { s.observe(ctx, "verify", err) }()

	key := NormalizeKey(input.LicenseKey)
	machine := strings.TrimSpace(input.MachineID)
	if key == "" || machine == "" {
		return nil, errInvalid("license_key and machine_id are required")
	}

	var outcome error
	err = s.inTx(ctx, func(ctx context.Context, store Store) error {
		res, outcome = nil, nil

		lic, err := findByKey(ctx, store, key)
		if err != nil {
			return err
		}
		if !lic.BoundTo(machine) {
			return errMachineMismatch()
		}
		if lic.Status == enums.LicenseStatusRevoked {
			return errRevoked()
		}
		if lic.Status == enums.LicenseStatusExpired {
			return errExpired(lic.ExpireDate)
		}

		now := s.now()
		if s.overdue(lic, now) {
			if err := s.expire(ctx, store, lic); err != nil {
				return err
			}
			outcome = errExpired(lic.ExpireDate)
			return nil
		}

		next, err := Transition(lic.Status, enums.LicenseEventVerify)
		if err != nil {
			return err
		}
		token, err := s.newToken()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue token")
		}
		lic.Status = next
		lic.LastHeartbeat = &now
		lic.HeartbeatCount++
		lic.CurrentToken = &token
		if err := store.Update(ctx, lic); err != nil {
			return err
		}
		if err := store.AppendHeartbeat(ctx, &models.LicenseHeartbeat{
			ID:         uuid.New(),
			LicenseID:  lic.ID,
			MachineID:  machine,
			ClientIP:   optional(input.ClientIP),
			AppVersion: optional(input.AppVersion),
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		res = &VerifyResult{
			Valid:         true,
			PlanType:      lic.PlanType,
			ExpireDate:    lic.ExpireDate,
			RemainingDays: remainingDays(lic, now),
			MaxUsers:      lic.MaxUsers,
			Token:         token,
		}
		return nil
	})
	if err != nil {
		return nil, errStorage(err, "verify license")
	}
	if outcome != nil {
		return nil, outcome
	}
	return res, nil
}

func (s *service) Deactivate(ctx context.Context, input DeactivateInput) (lic *models.License, err error) {
	defer func() { s.observe(ctx, "deactivate", err) }()

	key := NormalizeKey(input.LicenseKey)
	machine := strings.TrimSpace(input.MachineID)
	if key == "" || machine == "" {
		return nil, errInvalid("license_key and machine_id are required")
	}

	err = s.inTx(ctx, func(ctx context.Context, store Store) error {
		lic = nil
		row, err := findByKey(ctx, store, key)
		if err != nil {
			return err
		}
		if !row.BoundTo(machine) {
			return errMachineMismatch()
		}
		next, err := Transition(row.Status, enums.LicenseEventDeactivate)
		if err != nil {
			return err
		}
		row.Status = next
		row.MachineID = nil
		row.ActivatedAt = nil
		row.CurrentToken = nil
		if err := store.Update(ctx, row); err != nil {
			return err
		}
		lic = row
		return nil
	})
	if err != nil {
		return nil, errStorage(err, "deactivate license")
	}
	s.info(ctx, lic, "license.deactivated")
	return lic, nil
}

func (s *service) Revoke(ctx context.Context, id uuid.UUID, reason string) (lic *models.License, err error) {
	defer func() { s.observe(ctx, "revoke", err) }()

	if id == uuid.Nil {
		return nil, errInvalid("license id is required")
	}
	err = s.mutateByID(ctx, id, enums.LicenseEventRevoke, func(row *models.License, now time.Time) {
		note := fmt.Sprintf("[revoked %s] %s", now.UTC().Format(time.RFC3339), strings.TrimSpace(reason))
		row.Notes = strings.TrimSpace(row.Notes + "\n" + strings.TrimSpace(note))
		row.CurrentToken = nil
	}, &lic)
	if err != nil {
		return nil, err
	}
	s.info(ctx, lic, "license.revoked")
	return lic, nil
}

func (s *service) Extend(ctx context.Context, id uuid.UUID, days int) (lic *models.License, err error) {
	defer func() { s.observe(ctx, "extend", err) }()

	if id == uuid.Nil {
		return nil, errInvalid("license id is required")
	}
	if days <= 0 {
		return nil, errInvalid("days must be positive")
	}
	err = s.mutateByID(ctx, id, enums.LicenseEventExtend, func(row *models.License, now time.Time) {
		base := now
		if row.ExpireDate != nil && row.ExpireDate.After(now) {
			base = *row.ExpireDate
		}
		next := base.Add(time.Duration(days) * 24 * time.Hour)
		row.ExpireDate = &next
	}, &lic)
	if err != nil {
		return nil, err
	}
	s.info(ctx, lic, "license.extended")
	return lic, nil
}

func (s *service) UnbindDevice(ctx context.Context, id uuid.UUID) (lic *models.License, err error) {
	defer func() { s.observe(ctx, "unbind", err) }()

	if id == uuid.Nil {
		return nil, errInvalid("license id is required")
	}
	err = s.mutateByID(ctx, id, enums.LicenseEventUnbind, func(row *models.License, _ time.Time) {
		row.MachineID = nil
		row.CurrentToken = nil
	}, &lic)
	if err != nil {
		return nil, err
	}
	s.info(ctx, lic, "license.unbound")
	return lic, nil
}

// mutateByID locks the license, applies event and mutate, and writes it back.
func (s *service) mutateByID(ctx context.Context, id uuid.UUID, event enums.LicenseEvent, mutate func(row *models.License, now time.Time), out **models.License) error {
	err := s.inTx(ctx, func(ctx context.Context, store Store) error {
		*out = nil
		row, err := store.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNotFound()
			}
			return err
		}
		next, err := Transition(row.Status, event)
		if err != nil {
			return err
		}
		mutate(row, s.now())
		row.Status = next
		if err := store.Update(ctx, row); err != nil {
			return err
		}
		*out = row
		return nil
	})
	if err != nil {
		return errStorage(err, fmt.Sprintf("%s license", event))
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.License, error) {
	if id == uuid.Nil {
		return nil, errInvalid("license id is required")
	}
	lic, err := s.reader.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
	}
	return lic, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, errInvalid("invalid status filter")
	}
	query := listQuery{
		status:  params.Status,
		ownerID: params.OwnerID,
		limit:   pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.reader.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list licenses")
	}
	page, next := pkgpagination.Trim(rows, params.Limit, func(m models.License) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})

	items := make([]LicenseView, len(page))
	for i, row := range page {
		items[i] = ToView(row)
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) ListHeartbeats(ctx context.Context, id uuid.UUID, params pkgpagination.Params) (*HeartbeatList, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	query := heartbeatQuery{licenseID: id, limit: pkgpagination.LimitWithBuffer(params.Limit)}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.reader.ListHeartbeats(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list heartbeats")
	}
	page, next := pkgpagination.Trim(rows, params.Limit, func(m models.LicenseHeartbeat) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})

	items := make([]HeartbeatView, len(page))
	for i, row := range page {
		items[i] = toHeartbeatView(row)
	}
	return &HeartbeatList{Items: items, Cursor: next}, nil
}

func (s *service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	byStatus, err := s.reader.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count licenses")
	}
	now := s.now()
	soon, err := s.reader.CountExpiringBetween(ctx, now, now.Add(s.expiringSoon))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count expiring licenses")
	}
	customers, err := s.owners.CountCustomers(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count customers")
	}

	stats := &DashboardStats{ByStatus: byStatus, ExpiringSoon: soon, TotalCustomers: customers}
	for _, n := range byStatus {
		stats.Total += n
	}
	return stats, nil
}

// ExpireOverdue moves one batch of overdue licenses to expired through the
// same locked transaction path verify uses. Per-license failures are
// aggregated; the count covers the licenses actually expired.
func (s *service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.reader.FindOverdueIDs(ctx, now, s.sweepBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find overdue licenses")
	}

	expired := 0
	var errs error
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, multierr.Append(errs, ctx.Err())
		}
		var changed *models.License
		err := s.inTx(ctx, func(ctx context.Context, store Store) error {
			changed = nil
			lic, err := store.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if !s.overdue(lic, s.now()) {
				return nil
			}
			if err := s.expire(ctx, store, lic); err != nil {
				return err
			}
			changed = lic
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire license %s: %w", id, err))
			continue
		}
		if changed != nil {
			expired++
			s.observe(ctx, "expire", nil)
			s.info(ctx, changed, "license.expired")
		}
	}
	return expired, errs
}

// PurgeHeartbeats deletes heartbeat entries older than olderThan in batches.
func (s *service) PurgeHeartbeats(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errInvalid("retention window must be positive")
	}
	cutoff := s.now().Add(-olderThan)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.reader.DeleteHeartbeatsBefore(ctx, cutoff, heartbeatPurgeBatch)
		if err != nil {
			return total, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete heartbeats")
		}
		total += n
		if n < heartbeatPurgeBatch {
			return total, nil
		}
	}
}

// inTx runs fn in a transaction, retrying when an optimistic write lost a race.
func (s *service) inTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	err := retry.Do(
		func() error { return s.tx.WithinTx(ctx, fn) },
		retry.Context(ctx),
		retry.Attempts(s.retryAttempts),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrStaleLicense) }),
		retry.LastErrorOnly(true),
	)
	if errors.Is(err, ErrStaleLicense) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "license was modified concurrently; retry")
	}
	return err
}

// expire persists the expire transition on lic.
func (s *service) expire(ctx context.Context, store Store, lic *models.License) error {
	next, err := Transition(lic.Status, enums.LicenseEventExpire)
	if err != nil {
		return err
	}
	lic.Status = next
	return store.Update(ctx, lic)
}

// overdue reports whether lic should be expired at now.
func (s *service) overdue(lic *models.License, now time.Time) bool {
	if lic.PlanType.IsPerpetual() || lic.ExpireDate == nil {
		return false
	}
	return lic.ExpireDate.Before(now)
}

func (s *service) observe(ctx context.Context, op string, err error) {
	s.metrics.RecordOperation(op, outcomeOf(err))
	if err != nil && s.logg != nil && pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		s.logg.Error(s.logg.WithField(ctx, "op", op), "license operation failed", err)
	}
}

func (s *service) info(ctx context.Context, lic *models.License, msg string) {
	if s.logg == nil || lic == nil {
		return
	}
	ctx = s.logg.WithLicense(ctx, lic.LicenseKey)
	s.logg.Info(s.logg.WithField(ctx, "status", lic.Status), msg)
}

func findByKey(ctx context.Context, store Store, key string) (*models.License, error) {
	lic, err := store.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound()
		}
		return nil, err
	}
	return lic, nil
}

// remainingDays is whole days left before expiry, floored at zero, or nil
// when the license never expires.
func remainingDays(lic *models.License, now time.Time) *int {
	if lic.PlanType.IsPerpetual() || lic.ExpireDate == nil {
		return nil
	}
	days := int(lic.ExpireDate.Sub(now) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	return &days
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
