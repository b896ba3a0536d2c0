package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"example.com/evt3gate/internal/common"
	"example.com/evt3gate/internal/evt3"
)

// DefaultBins is the number of time bins used for the event-rate histogram.
const DefaultBins = 50

// Summary is the persisted outcome of a decode run.
type Summary struct {
	Name        string        `json:"name"`
	Source      string        `json:"source,omitempty"`
	Digest      string        `json:"sha256,omitempty"`
	Size        int64         `json:"size,omitempty"`
	Header      evt3.Header   `json:"header"`
	Metadata    evt3.Metadata `json:"metadata"`
	Stats       evt3.Stats    `json:"stats"`
	Rates       RateStats     `json:"rates"`
	Bins        []Bin         `json:"bins,omitempty"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// BuildSummary derives a Summary from a decoded recording. bins <= 0 selects
// DefaultBins.
func BuildSummary(rec evt3.Recording, bins int) Summary {
	if bins <= 0 {
		bins = DefaultBins
	}
	b := binEvents(rec.Events, rec.Metadata, bins)
	return Summary{
		Name:        displayName(rec.Path),
		Source:      rec.Path,
		Header:      rec.Header,
		Metadata:    rec.Metadata,
		Stats:       rec.Stats,
		Rates:       computeRates(b, rec.Metadata),
		Bins:        b,
		GeneratedAt: time.Now().UTC(),
	}
}

// AttachDigest records the SHA-256 and size of the file at path.
func (s *Summary) AttachDigest(path string) error {
	digest, size, err := common.Sha256OfFile(path)
	if err != nil {
		return err
	}
	s.Digest = digest
	s.Size = size
	return nil
}

func SaveSummaryJSON(sum Summary, out string) error {
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSummaryJSON(path string) (Summary, error) {
	var sum Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return sum, err
	}
	err = json.Unmarshal(b, &sum)
	return sum, err
}

func displayName(path string) string {
	if path == "" {
		return "stream"
	}
	return filepath.Base(path)
}
