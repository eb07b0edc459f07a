package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/api/middleware"
	"github.com/angelmondragon/licensor-backend/api/responses"
	"github.com/angelmondragon/licensor-backend/api/validators"
	"github.com/angelmondragon/licensor-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

// tokenHeader repeats the access token from the response body.
const tokenHeader = "X-Licensor-Token"

var errAuthUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")

// AuthLogin checks credentials against the login limiter for the resolved
// client ip and returns an access token plus refresh token.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errAuthUnavailable)
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Login(ctx, body, middleware.ClientIP(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

func AuthMe(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errAuthUnavailable)
			return
		}

		id, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		user, err := svc.Me(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}
