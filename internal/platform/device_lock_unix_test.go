//go:build unix

package platform

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireDeviceLock_ContentionAndRelease(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	appID := "web888mon-test-" + strconv.Itoa(os.Getpid())

	lock1, err := AcquireDeviceLock(appID, "192.168.1.20")
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}

	lock2, err := AcquireDeviceLock(appID, "192.168.1.20")
	if !errors.Is(err, ErrDeviceLocked) {
		t.Fatalf("expected %v, got %v", ErrDeviceLocked, err)
	}
	if lock2 != nil {
		t.Fatalf("expected second lock to be nil, got %#v", lock2)
	}

	other, err := AcquireDeviceLock(appID, "192.168.1.21")
	if err != nil {
		t.Fatalf("expected a different host to lock independently: %v", err)
	}
	if err := other.Release(); err != nil {
		t.Fatalf("release other lock: %v", err)
	}

	if err := lock1.Release(); err != nil {
		t.Fatalf("release first lock: %v", err)
	}
	if err := lock1.Release(); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}

	lock3, err := AcquireDeviceLock(appID, "192.168.1.20")
	if err != nil {
		t.Fatalf("acquire lock after release: %v", err)
	}
	if err := lock3.Release(); err != nil {
		t.Fatalf("release third lock: %v", err)
	}
}

func TestLockDirPrefersXDGRuntimeDir(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	dir, err := lockDir("web888mon")
	if err != nil {
		t.Fatalf("resolve lock dir: %v", err)
	}
	if dir != filepath.Join(runtimeDir, "web888mon") {
		t.Fatalf("unexpected lock dir %q", dir)
	}
}

func TestLockDirFallsBackToTemp(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	dir, err := lockDir("web888mon")
	if err != nil {
		t.Fatalf("resolve lock dir: %v", err)
	}
	if !strings.Contains(dir, "web888mon-"+strconv.Itoa(os.Getuid())) {
		t.Fatalf("unexpected lock dir %q", dir)
	}
}
