package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/licensor-backend/api/middleware"
	"github.com/angelmondragon/licensor-backend/api/responses"
	"github.com/angelmondragon/licensor-backend/api/validators"
	"github.com/angelmondragon/licensor-backend/internal/licenses"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/fingerprint"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

type licenseActivateRequest struct {
	LicenseKey  string                    `json:"license_key" validate:"required,max=64,license_key"`
	MachineID   string                    `json:"machine_id" validate:"max=128"`
	MachineInfo *fingerprint.HardwareInfo `json:"machine_info"`
}

type licenseActivateResponse struct {
	LicenseKey string              `json:"license_key"`
	PlanType   enums.PlanType      `json:"plan_type"`
	Status     enums.LicenseStatus `json:"status"`
	ExpireDate *time.Time          `json:"expire_date"`
	MaxUsers   int                 `json:"max_users"`
	MachineID  *string             `json:"machine_id"`
	Token      string              `json:"token"`
}

type licenseVerifyRequest struct {
	LicenseKey string `json:"license_key" validate:"required,max=64,license_key"`
	MachineID  string `json:"machine_id" validate:"required,max=128"`
	AppVersion string `json:"app_version" validate:"max=64"`
}

type licenseVerifyResponse struct {
	Valid         bool           `json:"valid"`
	PlanType      enums.PlanType `json:"plan_type"`
	ExpireDate    *time.Time     `json:"expire_date"`
	RemainingDays *int           `json:"remaining_days"`
	MaxUsers      int            `json:"max_users"`
	Token         string         `json:"token"`
}

type licenseDeactivateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,max=64,license_key"`
	MachineID  string `json:"machine_id" validate:"required,max=128"`
}

// LicenseActivate binds a license to the calling machine.
func LicenseActivate(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var body licenseActivateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		machineID, err := fingerprint.Resolve(body.MachineID, body.MachineInfo)
		if err != nil {
			if errors.Is(err, fingerprint.ErrMissingIdentity) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Activate(r.Context(), licenses.ActivateInput{
			LicenseKey: body.LicenseKey,
			MachineID:  machineID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, licenseActivateResponse{
			LicenseKey: result.License.LicenseKey,
			PlanType:   result.License.PlanType,
			Status:     result.License.Status,
			ExpireDate: result.License.ExpireDate,
			MaxUsers:   result.License.MaxUsers,
			MachineID:  result.License.MachineID,
			Token:      result.Token,
		})
	}
}

// LicenseVerify records a heartbeat and rotates the liveness token.
func LicenseVerify(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var body licenseVerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), licenses.VerifyInput{
			LicenseKey: body.LicenseKey,
			MachineID:  strings.TrimSpace(body.MachineID),
			ClientIP:   middleware.ClientIP(r),
			AppVersion: validators.SanitizeString(body.AppVersion, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, licenseVerifyResponse{
			Valid:         result.Valid,
			PlanType:      result.PlanType,
			ExpireDate:    result.ExpireDate,
			RemainingDays: result.RemainingDays,
			MaxUsers:      result.MaxUsers,
			Token:         result.Token,
		})
	}
}

// LicenseDeactivate releases the binding held by the calling machine.
func LicenseDeactivate(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var body licenseDeactivateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lic, err := svc.Deactivate(r.Context(), licenses.DeactivateInput{
			LicenseKey: body.LicenseKey,
			MachineID:  strings.TrimSpace(body.MachineID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]enums.LicenseStatus{"status": lic.Status})
	}
}
