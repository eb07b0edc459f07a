package models

import (
	"time"

	"github.com/google/uuid"
)

// LicenseHeartbeat is one append-only entry of the verification log.
type LicenseHeartbeat struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	LicenseID  uuid.UUID `gorm:"column:license_id;type:uuid;not null;index:idx_license_heartbeats_license_created,priority:1"`
	MachineID  string    `gorm:"column:machine_id;not null"`
	ClientIP   *string   `gorm:"column:client_ip"`
	AppVersion *string   `gorm:"column:app_version"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index:idx_license_heartbeats_license_created,priority:2"`
}
