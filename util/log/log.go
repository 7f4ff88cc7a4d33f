// Package log wraps the standard logger. Debug output is switched by Setup.
package log

import (
	"fmt"
	"log"
	"sync/atomic"
)

var debug atomic.Bool

// Print calls the standard log.Print()
func Print(v ...interface{}) {
	log.Output(2, fmt.Sprint(v...))
}

// Printf calls the standard log.Printf()
func Printf(format string, v ...interface{}) {
	log.Output(2, fmt.Sprintf(format, v...))
}

// Println calls the standard log.Println()
func Println(v ...interface{}) {
	log.Output(2, fmt.Sprintln(v...))
}

// Debug logs with a [DEBUG] prefix when debug output is on.
func Debug(v ...interface{}) {
	if debug.Load() {
		log.Output(2, "[DEBUG] "+fmt.Sprint(v...))
	}
}

// Debugf logs with a [DEBUG] prefix when debug output is on.
func Debugf(format string, v ...interface{}) {
	if debug.Load() {
		log.Output(2, "[DEBUG] "+fmt.Sprintf(format, v...))
	}
}
