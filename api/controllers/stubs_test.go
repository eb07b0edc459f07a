package controllers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/internal/auth"
	"github.com/angelmondragon/licensor-backend/internal/licenses"
	"github.com/angelmondragon/licensor-backend/internal/users"
	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	pkgpagination "github.com/angelmondragon/licensor-backend/pkg/pagination"
)

// stubLicenseService records the last input of each call and returns the
// configured result.
type stubLicenseService struct {
	createInput     licenses.CreateInput
	activateInput   licenses.ActivateInput
	verifyInput     licenses.VerifyInput
	deactivateInput licenses.DeactivateInput
	listParams      licenses.ListParams
	revokeReason    string
	extendDays      int
	lastID          uuid.UUID
	heartbeatParams pkgpagination.Params

	license    *models.License
	activation *licenses.ActivationResult
	verify     *licenses.VerifyResult
	list       *licenses.ListResult
	heartbeats *licenses.HeartbeatList
	stats      *licenses.DashboardStats
	err        error
}

func (s *stubLicenseService) Create(_ context.Context, in licenses.CreateInput) (*models.License, error) {
	s.createInput = in
	return s.license, s.err
}

func (s *stubLicenseService) Activate(_ context.Context, in licenses.ActivateInput) (*licenses.ActivationResult, error) {
	s.activateInput = in
	return s.activation, s.err
}

func (s *stubLicenseService) Verify(_ context.Context, in licenses.VerifyInput) (*licenses.VerifyResult, error) {
	s.verifyInput = in
	return s.verify, s.err
}

func (s *stubLicenseService) Deactivate(_ context.Context, in licenses.DeactivateInput) (*models.License, error) {
	s.deactivateInput = in
	return s.license, s.err
}

func (s *stubLicenseService) Revoke(_ context.Context, id uuid.UUID, reason string) (*models.License, error) {
	s.lastID, s.revokeReason = id, reason
	return s.license, s.err
}

func (s *stubLicenseService) Extend(_ context.Context, id uuid.UUID, days int) (*models.License, error) {
	s.lastID, s.extendDays = id, days
	return s.license, s.err
}

func (s *stubLicenseService) UnbindDevice(_ context.Context, id uuid.UUID) (*models.License, error) {
	s.lastID = id
	return s.license, s.err
}

func (s *stubLicenseService) Get(_ context.Context, id uuid.UUID) (*models.License, error) {
	s.lastID = id
	return s.license, s.err
}

func (s *stubLicenseService) List(_ context.Context, params licenses.ListParams) (*licenses.ListResult, error) {
	s.listParams = params
	return s.list, s.err
}

func (s *stubLicenseService) ListHeartbeats(_ context.Context, id uuid.UUID, params pkgpagination.Params) (*licenses.HeartbeatList, error) {
	s.lastID, s.heartbeatParams = id, params
	return s.heartbeats, s.err
}

func (s *stubLicenseService) Dashboard(context.Context) (*licenses.DashboardStats, error) {
	return s.stats, s.err
}

func (s *stubLicenseService) ExpireOverdue(context.Context) (int, error) { return 0, s.err }

func (s *stubLicenseService) PurgeHeartbeats(context.Context, time.Duration) (int64, error) {
	return 0, s.err
}

type stubAuthService struct {
	lastReq  auth.LoginRequest
	lastIP   string
	lastUser uuid.UUID
	resp     *auth.LoginResponse
	user     *users.UserDTO
	err      error
}

func (s *stubAuthService) Login(_ context.Context, req auth.LoginRequest, clientIP string) (*auth.LoginResponse, error) {
	s.lastReq, s.lastIP = req, clientIP
	return s.resp, s.err
}

func (s *stubAuthService) Me(_ context.Context, userID uuid.UUID) (*users.UserDTO, error) {
	s.lastUser = userID
	return s.user, s.err
}
