//go:build unix

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/muvahhid/molayeri-sub002/config"
)

var (
	lockFile *os.File
)

// acquireLock takes an exclusive file lock in dir so two servers never share
// one listings file.
func acquireLock(dir string) (bool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create data directory: %w", err)
	}
	lockFilePath := filepath.Join(dir, strings.ToLower(config.AppName)+".lock")
	file, err := os.OpenFile(lockFilePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return false, fmt.Errorf("failed to open lock file: %w", err)
	}

	err = unix.FcntlFlock(file.Fd(), unix.F_SETLK, &unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: 0,
		Start:  0,
		Len:    0, // Lock the entire file
	})

	if err != nil {
		file.Close()
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
			// Another instance holds the lock
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	lockFile = file
	return true, nil
}

// releaseLock releases the single-instance lock.
func releaseLock() {
	if lockFile == nil {
		return
	}
	// Best effort unlock
	unix.FcntlFlock(lockFile.Fd(), unix.F_SETLK, &unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  0,
		Len:    0,
	})
	lockFile.Close()
	os.Remove(lockFile.Name())
	lockFile = nil
}
