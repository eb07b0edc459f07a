package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/internal/licenses"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/fingerprint"
)

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.Code
}

func TestLicenseActivateWithMachineID(t *testing.T) {
	machine := "machine-1"
	exp := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubLicenseService{activation: &licenses.ActivationResult{
		License: models.License{
			LicenseKey: "LK-MON-AAAAA",
			PlanType:   enums.PlanTypeMonthly,
			Status:     enums.LicenseStatusActive,
			ExpireDate: &exp,
			MaxUsers:   5,
			MachineID:  &machine,
		},
		Token: "tok-1",
	}}

	rec := postJSON(t, LicenseActivate(svc, nil), "/api/v1/licenses/activate",
		`{"license_key":"LK-MON-AAAAA","machine_id":" machine-1 ","machine_info":{"cpu_id":"c"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.activateInput.MachineID != "machine-1" {
		t.Fatalf("explicit machine id should win, got %q", svc.activateInput.MachineID)
	}

	var out licenseActivateResponse
	decodeData(t, rec, &out)
	if out.Token != "tok-1" || out.Status != enums.LicenseStatusActive || out.MaxUsers != 5 {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestLicenseActivateDerivesFingerprint(t *testing.T) {
	svc := &stubLicenseService{activation: &licenses.ActivationResult{}}
	info := fingerprint.HardwareInfo{CPUID: "cpu", DiskSerial: "disk", MACAddress: "mac"}

	rec := postJSON(t, LicenseActivate(svc, nil), "/api/v1/licenses/activate",
		`{"license_key":"LK-MON-AAAAA","machine_info":{"cpu_id":"cpu","disk_serial":"disk","mac_address":"mac"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if want := fingerprint.FromHardware(info); svc.activateInput.MachineID != want {
		t.Fatalf("expected fingerprint %s got %s", want, svc.activateInput.MachineID)
	}
}

func TestLicenseActivateRequiresIdentity(t *testing.T) {
	svc := &stubLicenseService{}
	rec := postJSON(t, LicenseActivate(svc, nil), "/api/v1/licenses/activate", `{"license_key":"LK-MON-AAAAA"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.activateInput.LicenseKey != "" {
		t.Fatalf("service should not be called")
	}
}

func TestLicenseActivateDeviceConflict(t *testing.T) {
	svc := &stubLicenseService{err: pkgerrors.New(pkgerrors.CodeDeviceConflict, "bound elsewhere")}
	rec := postJSON(t, LicenseActivate(svc, nil), "/api/v1/licenses/activate", `{"license_key":"k","machine_id":"m"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeDeviceConflict) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestLicenseVerifyPassesClientContext(t *testing.T) {
	days := 12
	svc := &stubLicenseService{verify: &licenses.VerifyResult{
		Valid:         true,
		PlanType:      enums.PlanTypeYearly,
		RemainingDays: &days,
		MaxUsers:      10,
		Token:         "tok-2",
	}}

	rec := postJSON(t, LicenseVerify(svc, nil), "/api/v1/licenses/verify",
		`{"license_key":"LK-YEA-AAAAA","machine_id":"m1","app_version":"2.1.0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.verifyInput.ClientIP != "203.0.113.7" {
		t.Fatalf("expected client ip, got %q", svc.verifyInput.ClientIP)
	}
	if svc.verifyInput.AppVersion != "2.1.0" {
		t.Fatalf("expected app version, got %q", svc.verifyInput.AppVersion)
	}

	var out map[string]any
	decodeData(t, rec, &out)
	if out["valid"] != true || out["remaining_days"] != float64(12) || out["token"] != "tok-2" {
		t.Fatalf("unexpected response %v", out)
	}
}

func TestLicenseVerifyPerpetualHasNullRemainingDays(t *testing.T) {
	svc := &stubLicenseService{verify: &licenses.VerifyResult{Valid: true, PlanType: enums.PlanTypeLifetime}}
	rec := postJSON(t, LicenseVerify(svc, nil), "/api/v1/licenses/verify", `{"license_key":"k","machine_id":"m"}`)

	var out map[string]any
	decodeData(t, rec, &out)
	v, ok := out["remaining_days"]
	if !ok || v != nil {
		t.Fatalf("expected remaining_days null, got %v (present=%v)", v, ok)
	}
}

func TestLicenseVerifyRequiresMachineID(t *testing.T) {
	rec := postJSON(t, LicenseVerify(&stubLicenseService{}, nil), "/api/v1/licenses/verify", `{"license_key":"k"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestLicenseVerifyExpired(t *testing.T) {
	svc := &stubLicenseService{err: pkgerrors.New(pkgerrors.CodeLicenseExpired, "license expired")}
	rec := postJSON(t, LicenseVerify(svc, nil), "/api/v1/licenses/verify", `{"license_key":"k","machine_id":"m"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeLicenseExpired) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestLicenseDeactivate(t *testing.T) {
	svc := &stubLicenseService{license: &models.License{ID: uuid.New(), Status: enums.LicenseStatusPending}}
	rec := postJSON(t, LicenseDeactivate(svc, nil), "/api/v1/licenses/deactivate", `{"license_key":"k","machine_id":"m"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var out map[string]string
	decodeData(t, rec, &out)
	if out["status"] != string(enums.LicenseStatusPending) {
		t.Fatalf("unexpected status %v", out)
	}
	if svc.deactivateInput.MachineID != "m" {
		t.Fatalf("unexpected input %+v", svc.deactivateInput)
	}
}

func TestLicenseHandlersWithoutService(t *testing.T) {
	rec := postJSON(t, LicenseVerify(nil, nil), "/", `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
