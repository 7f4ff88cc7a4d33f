//go:build release

package log

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/muvahhid/molayeri-sub002/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup sends the standard logger to a rotated file described by cfg.
func Setup(cfg config.LogConfig) error {
	path, err := cfg.FilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	log.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	debug.Store(cfg.Debug)
	return nil
}
