package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"example.com/evt3gate/internal/evt3"
)

const maxLineBytes = 1 << 20

// WriteNDJSON writes one {"t","x","y","p"} object per line.
func WriteNDJSON(w io.Writer, events []evt3.Event) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range events {
		if err := enc.Encode(events[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadNDJSON parses the output of WriteNDJSON. Blank lines are skipped.
func ReadNDJSON(r io.Reader) ([]evt3.Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var events []evt3.Event
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev evt3.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
