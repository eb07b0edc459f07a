package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/api/middleware"
	"github.com/angelmondragon/licensor-backend/api/responses"
	"github.com/angelmondragon/licensor-backend/api/validators"
	"github.com/angelmondragon/licensor-backend/internal/licenses"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

// PortalLicenses lists the licenses owned by the authenticated user.
func PortalLicenses(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		owner, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), licenses.ListParams{OwnerID: &owner, Params: page})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func PortalPlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, licenses.Plans())
	}
}
