package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/api/middleware"
	"github.com/angelmondragon/licensor-backend/internal/licenses"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
)

func withLicenseID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(licenseIDParam, id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func sampleLicense() *models.License {
	return &models.License{
		ID:         uuid.New(),
		LicenseKey: "LK-TRI-AAAAA-BBBBB-CCCCC-DDDDD",
		PlanType:   enums.PlanTypeTrial,
		Status:     enums.LicenseStatusPending,
		OwnerID:    uuid.New(),
		MaxUsers:   2,
	}
}

func TestAdminLicenseCreate(t *testing.T) {
	lic := sampleLicense()
	svc := &stubLicenseService{license: lic}
	owner := uuid.New()

	body := `{"plan_type":"trial","owner_id":"` + owner.String() + `","max_users":0,"notes":" pilot "}`
	rec := postJSON(t, AdminLicenseCreate(svc, nil), "/api/admin/v1/licenses", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.createInput.PlanType != enums.PlanTypeTrial || svc.createInput.OwnerID != owner {
		t.Fatalf("unexpected input %+v", svc.createInput)
	}
	if svc.createInput.Notes != "pilot" {
		t.Fatalf("expected trimmed notes, got %q", svc.createInput.Notes)
	}

	var view licenses.LicenseView
	decodeData(t, rec, &view)
	if view.LicenseKey != lic.LicenseKey {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestAdminLicenseCreateRejectsUnknownPlan(t *testing.T) {
	svc := &stubLicenseService{}
	body := `{"plan_type":"weekly","owner_id":"` + uuid.NewString() + `"}`
	rec := postJSON(t, AdminLicenseCreate(svc, nil), "/api/admin/v1/licenses", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminLicenseCreateRejectsBadOwner(t *testing.T) {
	rec := postJSON(t, AdminLicenseCreate(&stubLicenseService{}, nil), "/api/admin/v1/licenses", `{"plan_type":"trial","owner_id":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminLicenseListFilters(t *testing.T) {
	svc := &stubLicenseService{list: &licenses.ListResult{Items: []licenses.LicenseView{}}}
	owner := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/licenses?status=active&owner_id="+owner.String()+"&limit=10", nil)
	rec := httptest.NewRecorder()
	AdminLicenseList(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.listParams.Status == nil || *svc.listParams.Status != enums.LicenseStatusActive {
		t.Fatalf("expected status filter, got %+v", svc.listParams)
	}
	if svc.listParams.OwnerID == nil || *svc.listParams.OwnerID != owner {
		t.Fatalf("expected owner filter, got %+v", svc.listParams)
	}
	if svc.listParams.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", svc.listParams.Limit)
	}
}

func TestAdminLicenseListRejectsUnknownStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/licenses?status=paused", nil)
	rec := httptest.NewRecorder()
	AdminLicenseList(&stubLicenseService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminLicenseGetNotFound(t *testing.T) {
	svc := &stubLicenseService{err: pkgerrors.New(pkgerrors.CodeNotFound, "license not found")}
	id := uuid.New()
	req := withLicenseID(httptest.NewRequest(http.MethodGet, "/", nil), id.String())
	rec := httptest.NewRecorder()
	AdminLicenseGet(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if svc.lastID != id {
		t.Fatalf("expected id %s got %s", id, svc.lastID)
	}
}

func TestAdminLicenseGetBadID(t *testing.T) {
	req := withLicenseID(httptest.NewRequest(http.MethodGet, "/", nil), "nope")
	rec := httptest.NewRecorder()
	AdminLicenseGet(&stubLicenseService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminLicenseExtend(t *testing.T) {
	svc := &stubLicenseService{license: sampleLicense()}
	id := uuid.New()
	req := withLicenseID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"days":30}`)), id.String())
	rec := httptest.NewRecorder()
	AdminLicenseExtend(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.extendDays != 30 || svc.lastID != id {
		t.Fatalf("unexpected call %d %s", svc.extendDays, svc.lastID)
	}
}

func TestAdminLicenseExtendRejectsNonPositiveDays(t *testing.T) {
	req := withLicenseID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"days":0}`)), uuid.NewString())
	rec := httptest.NewRecorder()
	AdminLicenseExtend(&stubLicenseService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminLicenseRevokeAndUnbind(t *testing.T) {
	svc := &stubLicenseService{license: sampleLicense()}
	id := uuid.New()

	req := withLicenseID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"  chargeback "}`)), id.String())
	rec := httptest.NewRecorder()
	AdminLicenseRevoke(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200 got %d", rec.Code)
	}
	if svc.revokeReason != "chargeback" {
		t.Fatalf("expected sanitized reason, got %q", svc.revokeReason)
	}

	req = withLicenseID(httptest.NewRequest(http.MethodPost, "/", nil), id.String())
	rec = httptest.NewRecorder()
	AdminLicenseUnbind(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unbind: expected 200 got %d", rec.Code)
	}
}

func TestAdminLicenseHeartbeats(t *testing.T) {
	svc := &stubLicenseService{heartbeats: &licenses.HeartbeatList{Items: []licenses.HeartbeatView{{
		ID:        uuid.New(),
		MachineID: "m1",
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}}}}
	id := uuid.New()
	req := withLicenseID(httptest.NewRequest(http.MethodGet, "/?limit=5", nil), id.String())
	rec := httptest.NewRecorder()
	AdminLicenseHeartbeats(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.heartbeatParams.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", svc.heartbeatParams.Limit)
	}
}

func TestAdminDashboard(t *testing.T) {
	svc := &stubLicenseService{stats: &licenses.DashboardStats{
		Total:    3,
		ByStatus: map[enums.LicenseStatus]int64{enums.LicenseStatusActive: 2, enums.LicenseStatusRevoked: 1},
	}}
	rec := httptest.NewRecorder()
	AdminDashboard(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var out licenses.DashboardStats
	decodeData(t, rec, &out)
	if out.Total != 3 || out.ByStatus[enums.LicenseStatusActive] != 2 {
		t.Fatalf("unexpected stats %+v", out)
	}
}

func TestPortalLicensesScopedToCaller(t *testing.T) {
	svc := &stubLicenseService{list: &licenses.ListResult{}}
	user := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/portal/licenses", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), user.String()))
	rec := httptest.NewRecorder()
	PortalLicenses(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.listParams.OwnerID == nil || *svc.listParams.OwnerID != user {
		t.Fatalf("expected owner filter %s, got %+v", user, svc.listParams.OwnerID)
	}
	if svc.listParams.Status != nil {
		t.Fatalf("portal must not filter by status")
	}
}

func TestPortalLicensesRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	PortalLicenses(&stubLicenseService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestPortalPlans(t *testing.T) {
	rec := httptest.NewRecorder()
	PortalPlans().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var plans []licenses.Plan
	decodeData(t, rec, &plans)
	if len(plans) != len(enums.PlanTypes()) {
		t.Fatalf("expected %d plans got %d", len(enums.PlanTypes()), len(plans))
	}
}
