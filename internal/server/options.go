package server

import (
	"errors"
	"fmt"
	"strings"

	"example.com/evt3gate/internal/evt3"
	"example.com/evt3gate/internal/store"
)

const (
	defaultMaxUploadMB = 1024
	multipartMemory    = 32 << 20
)

// Options configures server creation.
type Options struct {
	StorageDir         string
	ChunkWords         int
	EmitBeforeTimeBase bool
	MaxUploadMB        int64
	// Store persists decoded recordings when set; /recordings is disabled
	// otherwise.
	Store *store.Store
}

func (o Options) decodeOptions() evt3.Options {
	return evt3.Options{ChunkWords: o.ChunkWords, EmitBeforeTimeBase: o.EmitBeforeTimeBase}
}

func (o Options) maxUploadBytes() int64 {
	if o.MaxUploadMB <= 0 {
		return defaultMaxUploadMB << 20
	}
	return o.MaxUploadMB << 20
}

func (o Options) validate() error {
	if o.ChunkWords < 0 {
		return fmt.Errorf("chunk words must not be negative: %d", o.ChunkWords)
	}
	if strings.ContainsRune(o.StorageDir, 0) {
		return errors.New("storage dir contains NUL byte")
	}
	return nil
}
