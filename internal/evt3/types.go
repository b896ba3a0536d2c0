package evt3

import (
	"math"
	"time"
)

const (
	// DefaultWidth and DefaultHeight apply when the header carries no geometry.
	DefaultWidth  = 1280
	DefaultHeight = 720

	// DefaultChunkWords bounds how many words are resident per read.
	DefaultChunkWords = 1_000_000

	wordSize = 2
)

// Event is a single decoded pixel change.
type Event struct {
	Timestamp uint64 `json:"t"`
	X         uint32 `json:"x"`
	Y         uint32 `json:"y"`
	Polarity  uint16 `json:"p"`
}

// Metadata summarises a decoded recording. MinTime and MaxTime start at the
// (math.MaxUint64, 0) sentinel and stay there when no event was decoded.
type Metadata struct {
	Width   uint32 `json:"width"`
	Height  uint32 `json:"height"`
	MinTime uint64 `json:"minTime"`
	MaxTime uint64 `json:"maxTime"`
}

func newMetadata(width, height uint32) Metadata {
	return Metadata{Width: width, Height: height, MinTime: math.MaxUint64}
}

// Empty reports whether the time range is still at its sentinel values.
func (m Metadata) Empty() bool {
	return m.MinTime == math.MaxUint64 && m.MaxTime == 0
}

// Span returns MaxTime-MinTime, or 0 for an empty recording.
func (m Metadata) Span() uint64 {
	if m.Empty() || m.MaxTime < m.MinTime {
		return 0
	}
	return m.MaxTime - m.MinTime
}

func (m *Metadata) observe(ts uint64) {
	if ts < m.MinTime {
		m.MinTime = ts
	}
	if ts > m.MaxTime {
		m.MaxTime = ts
	}
}

// Stats counts what the decode loop saw besides the events themselves.
type Stats struct {
	Bytes          int64         `json:"bytes"`
	Words          int64         `json:"words"`
	Chunks         int64         `json:"chunks"`
	Events         int64         `json:"events"`
	ByType         [16]int64     `json:"byType"`
	Unknown        int64         `json:"unknown"`
	ExtTriggers    int64         `json:"extTriggers"`
	TimeLoops      uint64        `json:"timeLoops"`
	BeforeTimeBase int64         `json:"beforeTimeBase"`
	TrailingBytes  int64         `json:"trailingBytes"`
	Duration       time.Duration `json:"duration"`
}

// Recording bundles everything DecodeFile produces.
type Recording struct {
	Path     string   `json:"path,omitempty"`
	Header   Header   `json:"header"`
	Metadata Metadata `json:"metadata"`
	Stats    Stats    `json:"stats"`
	Events   []Event  `json:"-"`
}
