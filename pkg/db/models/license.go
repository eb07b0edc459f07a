package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensor-backend/pkg/enums"
)

// License is the authoritative record of a product entitlement and its
// current device binding.
type License struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	LicenseKey     string              `gorm:"column:license_key;not null;uniqueIndex"`
	PlanType       enums.PlanType      `gorm:"column:plan_type;not null"`
	Status         enums.LicenseStatus `gorm:"column:status;not null;default:'pending';index"`
	OwnerID        uuid.UUID           `gorm:"column:owner_id;type:uuid;not null;index"`
	MaxUsers       int                 `gorm:"column:max_users;not null"`
	MachineID      *string             `gorm:"column:machine_id;index"`
	ActivatedAt    *time.Time          `gorm:"column:activated_at"`
	ExpireDate     *time.Time          `gorm:"column:expire_date;index"`
	LastHeartbeat  *time.Time          `gorm:"column:last_heartbeat"`
	HeartbeatCount int64               `gorm:"column:heartbeat_count;not null;default:0"`
	CurrentToken   *string             `gorm:"column:current_token"`
	Notes          string              `gorm:"column:notes;not null;default:''"`
	Version        int64               `gorm:"column:version;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BoundTo reports whether the license is currently bound to machineID.
func (l License) BoundTo(machineID string) bool {
	return l.MachineID != nil && *l.MachineID == machineID
}

// Bound reports whether any machine holds the license.
func (l License) Bound() bool {
	return l.MachineID != nil && *l.MachineID != ""
}
