package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/licensor-backend/internal/loginlimit"
	"github.com/angelmondragon/licensor-backend/internal/users"
	pkgAuth "github.com/angelmondragon/licensor-backend/pkg/auth"
	"github.com/angelmondragon/licensor-backend/pkg/auth/session"
	"github.com/angelmondragon/licensor-backend/pkg/config"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
	"github.com/angelmondragon/licensor-backend/pkg/metrics"
	"github.com/angelmondragon/licensor-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest, clientIP string) (*LoginResponse, error)
	Me(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error)
}

type service struct {
	users   userRepository
	limiter loginLimiter
	session sessionManager
	jwtCfg  config.JWTConfig
	pwCfg   config.PasswordConfig
	metrics *metrics.LicenseMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type userRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type loginLimiter interface {
	IsLocked(ip, account string) loginlimit.Status
	RecordFailure(ip, account string) loginlimit.FailureResult
	RecordSuccess(ip, account string)
	RemainingAttempts(ip, account string) int
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	Limiter        loginLimiter
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Metrics        *metrics.LicenseMetrics
	Logger         *logger.Logger
	Now            func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Limiter == nil {
		return nil, fmt.Errorf("login limiter is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		users:   params.UserRepo,
		limiter: params.Limiter,
		session: params.SessionManager,
		jwtCfg:  params.JWTConfig,
		pwCfg:   params.PasswordConfig,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Login checks the limiter before the credential store so a locked pair
// never reaches password verification.
func (s *service) Login(ctx context.Context, req LoginRequest, clientIP string) (*LoginResponse, error) {
	account := normalizeAccount(req.Username)
	if account == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username and password are required")
	}
	ip := strings.TrimSpace(clientIP)

	if st := s.limiter.IsLocked(ip, account); st.Locked {
		return nil, lockedError(st.RemainingSeconds())
	}

	user, err := s.users.FindByIdentifier(ctx, account)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.failure(ctx, ip, account)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	valid, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, s.failure(ctx, ip, account)
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is disabled")
	}

	s.limiter.RecordSuccess(ip, account)
	s.upgradeHash(ctx, user, req.Password)

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last login")
	}
	user.LastLoginAt = &now

	accessID := session.NewAccessID()
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		JTI:      accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.session.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.jwtCfg.ExpirationMinutes * 60,
		User:         users.FromModel(user),
	}, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	return users.FromModel(user), nil
}

// failure records a bad attempt and builds the error for it. The failure
// that locks the pair reports ACCOUNT_LOCKED; earlier ones report how many
// attempts are left.
func (s *service) failure(ctx context.Context, ip, account string) error {
	res := s.limiter.RecordFailure(ip, account)
	if res.Locked {
		if res.JustLocked {
			s.metrics.IncLockout()
			if s.logg != nil {
				ctx = s.logg.WithFields(ctx, map[string]any{"client_ip": ip, "account": account, "fail_count": res.FailCount})
				s.logg.Warn(ctx, "auth.login.locked")
			}
		}
		return lockedError(res.LockoutSeconds())
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage).
		WithDetails(map[string]any{"remaining_attempts": s.limiter.RemainingAttempts(ip, account)})
}

// upgradeHash replaces a legacy bcrypt hash after a successful login. A
// failure leaves the old hash in place.
func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) {
	if !security.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := security.HashPassword(password, s.pwCfg)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, user.ID.String()), "password rehash failed: "+err.Error())
		}
		return
	}
	user.PasswordHash = hash
}

func lockedError(seconds int) error {
	return pkgerrors.New(pkgerrors.CodeAccountLocked, "too many failed login attempts").
		WithDetails(map[string]any{"retry_after_seconds": seconds})
}

func normalizeAccount(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
