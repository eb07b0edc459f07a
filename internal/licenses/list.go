package licenses

import (
	"time"

	"github.com/angelmondragon/licensor-backend/pkg/db/models"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/licensor-backend/pkg/pagination"
	"github.com/google/uuid"
)

// ListParams filters the license listing. Nil filters match everything.
type ListParams struct {
	Status  *enums.LicenseStatus
	OwnerID *uuid.UUID
	pkgpagination.Params
}

type ListResult struct {
	Items  []LicenseView `json:"items"`
	Cursor string        `json:"cursor"`
}

// LicenseView is the admin and portal projection of a license. The current
// liveness token is never exposed here.
type LicenseView struct {
	ID             uuid.UUID           `json:"id"`
	LicenseKey     string              `json:"license_key"`
	PlanType       enums.PlanType      `json:"plan_type"`
	Status         enums.LicenseStatus `json:"status"`
	OwnerID        uuid.UUID           `json:"owner_id"`
	MaxUsers       int                 `json:"max_users"`
	MachineID      *string             `json:"machine_id"`
	ActivatedAt    *time.Time          `json:"activated_at"`
	ExpireDate     *time.Time          `json:"expire_date"`
	LastHeartbeat  *time.Time          `json:"last_heartbeat"`
	HeartbeatCount int64               `json:"heartbeat_count"`
	Notes          string              `json:"notes,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type HeartbeatList struct {
	Items  []HeartbeatView `json:"items"`
	Cursor string          `json:"cursor"`
}

type HeartbeatView struct {
	ID         uuid.UUID `json:"id"`
	MachineID  string    `json:"machine_id"`
	ClientIP   *string   `json:"client_ip"`
	AppVersion *string   `json:"app_version"`
	CreatedAt  time.Time `json:"created_at"`
}

// DashboardStats summarises the license fleet for administrators.
type DashboardStats struct {
	Total          int64                         `json:"total"`
	ByStatus       map[enums.LicenseStatus]int64 `json:"by_status"`
	ExpiringSoon   int64                         `json:"expiring_soon"`
	TotalCustomers int64                         `json:"total_customers"`
}

type listQuery struct {
	status  *enums.LicenseStatus
	ownerID *uuid.UUID
	limit   int
	cursor  *pkgpagination.Cursor
}

type heartbeatQuery struct {
	licenseID uuid.UUID
	limit     int
	cursor    *pkgpagination.Cursor
}

// ToView projects a license row into its public shape.
func ToView(m models.License) LicenseView {
	return LicenseView{
		ID:             m.ID,
		LicenseKey:     m.LicenseKey,
		PlanType:       m.PlanType,
		Status:         m.Status,
		OwnerID:        m.OwnerID,
		MaxUsers:       m.MaxUsers,
		MachineID:      m.MachineID,
		ActivatedAt:    m.ActivatedAt,
		ExpireDate:     m.ExpireDate,
		LastHeartbeat:  m.LastHeartbeat,
		HeartbeatCount: m.HeartbeatCount,
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toHeartbeatView(m models.LicenseHeartbeat) HeartbeatView {
	return HeartbeatView{
		ID:         m.ID,
		MachineID:  m.MachineID,
		ClientIP:   m.ClientIP,
		AppVersion: m.AppVersion,
		CreatedAt:  m.CreatedAt,
	}
}
