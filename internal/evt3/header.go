package evt3

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	headerMarker = '%'
	formatName   = "EVT3"
)

var (
	ErrFormat       = errors.New("input is not in the EVT3 format")
	ErrGeometry     = errors.New("malformed geometry header")
	ErrInvalidRange = errors.New("t0 must not be greater than tend")
)

// Header is the decoded leading text block of a recording.
type Header struct {
	Format      string            `json:"format,omitempty"`
	Width       uint32            `json:"width"`
	Height      uint32            `json:"height"`
	HasGeometry bool              `json:"hasGeometry"`
	Ended       bool              `json:"ended"`
	Fields      map[string]string `json:"fields,omitempty"`
	Lines       int               `json:"lines"`
	Bytes       int64             `json:"bytes"`
}

// ParseHeader consumes every leading '%' line from br. It stops at "% end" or
// at the first byte that is not a header marker, leaving br positioned on the
// first binary word.
func ParseHeader(br *bufio.Reader) (Header, error) {
	var hdr Header
	var fallbackW, fallbackH uint32
	for {
		next, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return hdr, err
		}
		if next[0] != headerMarker {
			break
		}
		raw, err := br.ReadString('\n')
		hdr.Bytes += int64(len(raw))
		if err != nil && !errors.Is(err, io.EOF) {
			return hdr, err
		}
		hdr.Lines++
		line := strings.TrimRight(raw, "\r\n")
		if line == "% end" {
			hdr.Ended = true
			break
		}
		body := strings.TrimPrefix(line, "% ")
		switch {
		case strings.HasPrefix(line, "% format "):
			name, rest, _ := strings.Cut(strings.TrimPrefix(line, "% format "), ";")
			if name != formatName {
				return hdr, fmt.Errorf("%w: format %q", ErrFormat, name)
			}
			hdr.Format = name
			fallbackW, fallbackH = formatGeometry(rest)
		case strings.HasPrefix(line, "% geometry "):
			w, h, err := parseGeometry(strings.TrimPrefix(line, "% geometry "))
			if err != nil {
				return hdr, err
			}
			hdr.Width, hdr.Height = w, h
			hdr.HasGeometry = true
		default:
			key, value, _ := strings.Cut(body, " ")
			key = strings.TrimSpace(key)
			if key != "" && key != "%" {
				if hdr.Fields == nil {
					hdr.Fields = make(map[string]string)
				}
				hdr.Fields[key] = strings.TrimSpace(value)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if !hdr.HasGeometry && fallbackW != 0 && fallbackH != 0 {
		hdr.Width, hdr.Height = fallbackW, fallbackH
	}
	if hdr.Width == 0 || hdr.Height == 0 {
		hdr.Width, hdr.Height = DefaultWidth, DefaultHeight
	}
	return hdr, nil
}

func parseGeometry(s string) (uint32, uint32, error) {
	ws, hs, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrGeometry, s)
	}
	w, err := strconv.ParseUint(strings.TrimSpace(ws), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: width %q", ErrGeometry, ws)
	}
	h, err := strconv.ParseUint(strings.TrimSpace(hs), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: height %q", ErrGeometry, hs)
	}
	return uint32(w), uint32(h), nil
}

// formatGeometry reads width=/height= keys trailing the format name. Bad
// values are ignored; only the geometry line is authoritative.
func formatGeometry(rest string) (uint32, uint32) {
	var w, h uint32
	for _, kv := range strings.Split(rest, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "width":
			w = uint32(n)
		case "height":
			h = uint32(n)
		}
	}
	return w, h
}
