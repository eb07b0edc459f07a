package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/api/responses"
	"github.com/angelmondragon/licensor-backend/api/validators"
	"github.com/angelmondragon/licensor-backend/internal/licenses"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

const licenseIDParam = "licenseId"

type adminLicenseCreateRequest struct {
	PlanType   string     `json:"plan_type" validate:"required"`
	OwnerID    string     `json:"owner_id" validate:"required,uuid"`
	MaxUsers   int        `json:"max_users" validate:"min=0,max=100000"`
	ExpireDate *time.Time `json:"expire_date"`
	Notes      string     `json:"notes" validate:"max=2000"`
}

func (r adminLicenseCreateRequest) toInput() (licenses.CreateInput, error) {
	plan, err := enums.ParsePlanType(strings.TrimSpace(r.PlanType))
	if err != nil {
		return licenses.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan_type").
			WithDetails(map[string]any{"allowed": enums.PlanTypes()})
	}
	owner, err := uuid.Parse(strings.TrimSpace(r.OwnerID))
	if err != nil {
		return licenses.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner_id")
	}
	return licenses.CreateInput{
		PlanType:   plan,
		OwnerID:    owner,
		MaxUsers:   r.MaxUsers,
		ExpireDate: r.ExpireDate,
		Notes:      strings.TrimSpace(r.Notes),
	}, nil
}

type adminLicenseExtendRequest struct {
	Days int `json:"days" validate:"required,min=1,max=36500"`
}

type adminLicenseRevokeRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// AdminLicenseCreate mints a new pending license for an existing owner.
func AdminLicenseCreate(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var payload adminLicenseCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, licenses.ToView(*created))
	}
}

// AdminLicenseList pages through every license, optionally filtered by
// status and owner.
func AdminLicenseList(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := licenses.ListParams{Params: page}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseLicenseStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").
					WithDetails(map[string]any{"allowed": enums.LicenseStatuses()}))
				return
			}
			params.Status = &status
		}

		owner, err := validators.ParseQueryUUID(r, "owner_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.OwnerID = owner

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminLicenseGet(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := validators.PathUUID(r, licenseIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lic, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.ToView(*lic))
	}
}

// AdminLicenseExtend pushes the expiry forward by the requested days.
func AdminLicenseExtend(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := validators.PathUUID(r, licenseIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body adminLicenseExtendRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lic, err := svc.Extend(r.Context(), id, body.Days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.ToView(*lic))
	}
}

func AdminLicenseRevoke(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := validators.PathUUID(r, licenseIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body adminLicenseRevokeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lic, err := svc.Revoke(r.Context(), id, validators.SanitizeString(body.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.ToView(*lic))
	}
}

// AdminLicenseUnbind clears the device binding so another machine can activate.
func AdminLicenseUnbind(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := validators.PathUUID(r, licenseIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lic, err := svc.UnbindDevice(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.ToView(*lic))
	}
}

func AdminLicenseHeartbeats(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := validators.PathUUID(r, licenseIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListHeartbeats(r.Context(), id, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminDashboard(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		stats, err := svc.Dashboard(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
