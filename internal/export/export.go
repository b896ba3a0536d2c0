// Package export writes decoded events to interchange formats.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"example.com/evt3gate/internal/evt3"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Save writes events to path, picking the format from its extension.
func Save(path string, events []evt3.Event) error {
	write, err := writerFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, events); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Load reads events previously written by Save in NDJSON form.
func Load(path string) ([]evt3.Event, error) {
	if !isNDJSON(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadNDJSON(f)
}

func writerFor(path string) (func(w io.Writer, events []evt3.Event) error, error) {
	switch {
	case isNDJSON(path):
		return WriteNDJSON, nil
	case strings.EqualFold(filepath.Ext(path), ".csv"):
		return WriteCSV, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func isNDJSON(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ndjson", ".jsonl":
		return true
	}
	return false
}
