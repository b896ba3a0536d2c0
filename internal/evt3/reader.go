package evt3

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"example.com/evt3gate/internal/common"
)

const (
	readerBufferSize = 64 * 1024
	maxCapacityHint  = 1 << 24
)

// Options tunes a decode session. The zero value reads one million words
// per chunk and skips words before the first TIME_HIGH.
type Options struct {
	// ChunkWords is the number of words resident per read.
	ChunkWords int
	// EmitBeforeTimeBase keeps ADDR_X and vector words seen before the first
	// TIME_HIGH; their events are timestamped 0.
	EmitBeforeTimeBase bool
	// CapacityHint reserves room for that many events in the output of
	// DecodeReader/DecodeFile, capped at 1<<24. Without it the output grows
	// with the events actually decoded.
	CapacityHint int
}

func (o Options) chunkWords() int {
	if o.ChunkWords <= 0 {
		return DefaultChunkWords
	}
	return o.ChunkWords
}

// Reader decodes an EVT3 stream one bounded chunk at a time.
type Reader struct {
	br     *bufio.Reader
	closer io.Closer
	size   int64

	header Header
	stats  Stats
	dec    decoder

	buf     []byte
	pending int
	events  []Event

	metrics  *common.Metrics
	start    time.Time
	eof      bool
	finished bool
}

// NewReader parses the header from r and prepares the body decode loop.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, readerBufferSize)
	}
	rd := &Reader{br: br, size: -1, start: time.Now()}
	hdr, err := ParseHeader(br)
	if err != nil {
		return nil, err
	}
	rd.header = hdr
	rd.dec = newDecoder(hdr, &rd.stats, opts.EmitBeforeTimeBase)
	rd.buf = make([]byte, opts.chunkWords()*wordSize)
	return rd, nil
}

// Open opens the recording at path.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	rd, err := NewReader(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.closer = f
	rd.size = info.Size()
	return rd, nil
}

// Close releases the underlying file, if the Reader opened one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// SetMetrics attaches a metrics recorder to the reader.
func (r *Reader) SetMetrics(m *common.Metrics) {
	r.metrics = m
	if r.metrics != nil && r.size > 0 {
		r.metrics.SetTotalBytes(r.size)
		r.metrics.AddBytes(r.header.Bytes)
	}
}

// Header returns the parsed header.
func (r *Reader) Header() Header {
	return r.header
}

// Metadata returns the geometry and the time range observed so far.
func (r *Reader) Metadata() Metadata {
	return r.dec.meta
}

// Stats returns the counters accumulated so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Next decodes the next chunk and returns the events it produced. The slice
// is reused by the following call. Next returns io.EOF once the body is
// exhausted; a caller that stops calling Next abandons the session.
func (r *Reader) Next() ([]Event, error) {
	if r.eof {
		r.finish()
		return nil, io.EOF
	}
	n, err := io.ReadFull(r.br, r.buf[r.pending:])
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read body: %w", err)
		}
		r.eof = true
	}
	total := r.pending + n
	whole := total - total%wordSize
	before := r.stats.Words
	r.events = r.dec.decodeWords(r.buf[:whole], r.events[:0])
	r.pending = total - whole
	if n > 0 {
		r.stats.Bytes += int64(n)
		r.stats.Chunks++
		if r.metrics != nil {
			r.metrics.AddChunk(int64(n), r.stats.Words-before, int64(len(r.events)))
		}
	}
	if r.pending > 0 {
		if r.eof {
			r.stats.TrailingBytes = int64(r.pending)
			if r.metrics != nil {
				r.metrics.AddDropped(int64(r.pending))
			}
			r.pending = 0
		} else {
			copy(r.buf, r.buf[whole:total])
		}
	}
	if r.eof && len(r.events) == 0 {
		r.finish()
		return nil, io.EOF
	}
	return r.events, nil
}

func (r *Reader) finish() {
	if r.finished {
		return
	}
	r.finished = true
	r.stats.TimeLoops = r.dec.tb.loops
	r.stats.Duration = time.Since(r.start)
	if r.stats.TrailingBytes > 0 {
		common.Logf("dropped %d trailing byte(s) after %d words: partial word at end of stream", r.stats.TrailingBytes, r.stats.Words)
	}
	if r.stats.BeforeTimeBase > 0 {
		if r.dec.emitBefore {
			common.Logf("%d word(s) preceded the first TIME_HIGH; their events carry timestamp 0", r.stats.BeforeTimeBase)
		} else {
			common.Logf("skipped %d word(s) preceding the first TIME_HIGH", r.stats.BeforeTimeBase)
		}
	}
	if r.stats.Unknown > 0 {
		common.Logf("ignored %d word(s) with unrecognized type", r.stats.Unknown)
		if r.metrics != nil {
			r.metrics.AddUnknown(r.stats.Unknown)
		}
	}
}

// Decode reads a whole recording from r.
func Decode(r io.Reader) ([]Event, Metadata, error) {
	rec, err := DecodeReader(r, Options{})
	if err != nil {
		return nil, Metadata{}, err
	}
	return rec.Events, rec.Metadata, nil
}

// DecodeReader reads a whole recording from r with the given options.
func DecodeReader(r io.Reader, opts Options) (Recording, error) {
	rd, err := NewReader(r, opts)
	if err != nil {
		return Recording{}, err
	}
	return rd.collect(opts.CapacityHint, nil)
}

// DecodeFile decodes the recording at path. When m is non-nil it receives
// progress updates.
func DecodeFile(path string, opts Options, m *common.Metrics) (Recording, error) {
	rd, err := Open(path, opts)
	if err != nil {
		return Recording{}, fmt.Errorf("open recording: %w", err)
	}
	defer rd.Close()
	rec, err := rd.collect(opts.CapacityHint, m)
	if err != nil {
		return Recording{}, err
	}
	rec.Path = path
	return rec, nil
}

func (r *Reader) collect(hint int, m *common.Metrics) (Recording, error) {
	if m != nil {
		r.SetMetrics(m)
	}
	hint = min(max(hint, 0), maxCapacityHint)
	events := make([]Event, 0, hint)
	for {
		chunk, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Recording{}, err
		}
		events = append(events, chunk...)
	}
	return Recording{
		Header:   r.header,
		Metadata: r.dec.meta,
		Stats:    r.stats,
		Events:   events,
	}, nil
}
