package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/licensor-backend/api/responses"
	pkgAuth "github.com/angelmondragon/licensor-backend/pkg/auth"
	"github.com/angelmondragon/licensor-backend/pkg/auth/session"
	"github.com/angelmondragon/licensor-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

const bearerScheme = "bearer "

// Auth admits requests carrying a valid access token whose session is still
// live, and stores the caller as the request Actor. A nil checker skips the
// session lookup.
func Auth(cfg config.JWTConfig, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := authenticate(r.Context(), r, cfg, sessions)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, actor.UserID), actor.Role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(ctx context.Context, r *http.Request, cfg config.JWTConfig, sessions session.AccessSessionChecker) (Actor, error) {
	raw, ok := BearerToken(r)
	if !ok {
		return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, raw)
	if err != nil {
		return Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if sessions != nil {
		live, err := sessions.HasSession(ctx, claims.ID)
		if err != nil {
			return Actor{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}
	return Actor{
		UserID:   claims.UserID.String(),
		Role:     string(claims.Role),
		Username: claims.Username,
	}, nil
}

// BearerToken reads the Authorization header. The scheme is optional and
// matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(token) >= len(bearerScheme) && strings.EqualFold(token[:len(bearerScheme)], bearerScheme) {
		token = strings.TrimSpace(token[len(bearerScheme):])
	}
	return token, token != ""
}
