// Package fingerprint derives the stable machine identifier that license
// bindings are keyed on.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Length is the number of hex characters kept from the digest.
const Length = 32

// ErrMissingIdentity is returned when neither an explicit machine id nor any
// hardware attribute was supplied.
var ErrMissingIdentity = errors.New("machine_id or machine_info is required")

// HardwareInfo is the raw client-reported hardware identity.
type HardwareInfo struct {
	CPUID      string `json:"cpu_id"`
	DiskSerial string `json:"disk_serial"`
	MACAddress string `json:"mac_address"`
}

// Empty reports whether every attribute is blank.
func (h HardwareInfo) Empty() bool {
	return strings.TrimSpace(h.CPUID) == "" &&
		strings.TrimSpace(h.DiskSerial) == "" &&
		strings.TrimSpace(h.MACAddress) == ""
}

// FromHardware returns the lower-hex sha256 of "cpu-disk-mac", truncated.
func FromHardware(info HardwareInfo) string {
	raw := strings.Join([]string{info.CPUID, info.DiskSerial, info.MACAddress}, "-")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:Length]
}

// Resolve prefers an explicit machine id and falls back to the hardware digest.
func Resolve(machineID string, info *HardwareInfo) (string, error) {
	if id := strings.TrimSpace(machineID); id != "" {
		return id, nil
	}
	if info == nil || info.Empty() {
		return "", ErrMissingIdentity
	}
	return FromHardware(*info), nil
}
