//go:build !release

package log

import "github.com/muvahhid/molayeri-sub002/config"

// Development builds log to stderr with debug output on until Setup says otherwise.
func init() {
	debug.Store(true)
}

// Setup applies cfg. Development builds keep writing to stderr.
func Setup(cfg config.LogConfig) error {
	debug.Store(cfg.Debug)
	return nil
}
