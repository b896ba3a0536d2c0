package common

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	logMu  sync.RWMutex
	logger = log.New(os.Stderr, "[evt3gate] ", log.LstdFlags|log.Lmicroseconds)
)

func Logf(format string, args ...interface{}) {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	l.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	l.Fatalf(format, args...)
}

// SetLogOutput redirects the package logger. A nil writer discards output.
func SetLogOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	logMu.Lock()
	logger = log.New(w, "[evt3gate] ", log.LstdFlags|log.Lmicroseconds)
	logMu.Unlock()
}
