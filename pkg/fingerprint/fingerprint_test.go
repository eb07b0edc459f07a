package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func TestFromHardwareMatchesDigest(t *testing.T) {
	info := HardwareInfo{CPUID: "BFEBFBFF000906EA", DiskSerial: "S3Z9NB0K", MACAddress: "00:1A:2B:3C:4D:5E"}
	sum := sha256.Sum256([]byte("BFEBFBFF000906EA-S3Z9NB0K-00:1A:2B:3C:4D:5E"))
	want := hex.EncodeToString(sum[:])[:Length]

	if got := FromHardware(info); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if len(want) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(want))
	}
}

func TestResolvePrefersExplicitID(t *testing.T) {
	info := &HardwareInfo{CPUID: "cpu"}
	got, err := Resolve("  machine-a ", info)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "machine-a" {
		t.Fatalf("expected trimmed explicit id, got %q", got)
	}

	got, err = Resolve("", info)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != FromHardware(*info) {
		t.Fatalf("expected hardware digest, got %q", got)
	}
}

func TestResolveRequiresSomething(t *testing.T) {
	if _, err := Resolve(" ", nil); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if _, err := Resolve("", &HardwareInfo{}); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity for empty info, got %v", err)
	}
}
