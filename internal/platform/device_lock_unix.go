//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

type flockDeviceLock struct {
	file *os.File
}

func acquireDeviceLock(appID, host string) (DeviceLock, error) {
	dir, err := lockDir(appID)
	if err != nil {
		return nil, err
	}
	lockPath := filepath.Join(dir, host+".lock")

	// #nosec G304 -- lockPath is built from process-owned runtime/temp directories.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open device lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrDeviceLocked
		}

		return nil, fmt.Errorf("acquire device lock: %w", err)
	}

	return &flockDeviceLock{file: file}, nil
}

func (l *flockDeviceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, syscall.EBADF) {
		return fmt.Errorf("unlock device lock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close device lock file: %w", closeErr)
	}

	return nil
}

// lockDir prefers XDG_RUNTIME_DIR and falls back to a per-user temp directory.
func lockDir(appID string) (string, error) {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir != "" {
		dir = filepath.Join(dir, appID)
	} else {
		dir = filepath.Join(os.TempDir(), appID+"-"+strconv.Itoa(os.Getuid()))
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create device lock dir: %w", err)
	}

	return dir, nil
}
