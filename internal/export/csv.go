package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"example.com/evt3gate/internal/evt3"
)

var csvHeader = []string{"t", "x", "y", "p"}

// WriteCSV writes a header row followed by one row per event.
func WriteCSV(w io.Writer, events []evt3.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	row := make([]string, len(csvHeader))
	for _, ev := range events {
		row[0] = strconv.FormatUint(ev.Timestamp, 10)
		row[1] = strconv.FormatUint(uint64(ev.X), 10)
		row[2] = strconv.FormatUint(uint64(ev.Y), 10)
		row[3] = strconv.FormatUint(uint64(ev.Polarity), 10)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
