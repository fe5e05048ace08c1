package platform

import (
	"errors"
	"strings"
)

// ErrDeviceLocked means another monitor on this machine already holds the device.
var ErrDeviceLocked = errors.New("device already monitored by another process")

// ErrDeviceLockUnsupported means the platform has no lock backend.
var ErrDeviceLockUnsupported = errors.New("device lock unsupported")

// DeviceLock is held while an admin session to one device is owned by this process.
type DeviceLock interface {
	Release() error
}

// AcquireDeviceLock takes an exclusive, non-blocking lock named after appID and
// host. The lock is dropped by the OS if the process dies.
func AcquireDeviceLock(appID, host string) (DeviceLock, error) {
	return acquireDeviceLock(
		normalizeLockComponent(appID, "app"),
		normalizeLockComponent(host, "device"),
	)
}

func normalizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return fallback
	}

	return normalized
}
