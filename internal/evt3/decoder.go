package evt3

import (
	"encoding/binary"
	"math/bits"
)

const (
	vect12Width = 12
	vect8Width  = 8
)

// decoder is the per-session state machine. It is owned by a Reader and never
// shared; emitted events copy its registers.
type decoder struct {
	tb       timeBase
	addrY    uint16
	baseX    uint16
	polarity uint16

	meta       Metadata
	stats      *Stats
	emitBefore bool
}

func newDecoder(hdr Header, stats *Stats, emitBefore bool) decoder {
	return decoder{
		meta:       newMetadata(hdr.Width, hdr.Height),
		stats:      stats,
		emitBefore: emitBefore,
	}
}

// decodeWords walks every whole little-endian word in buf and appends the
// resulting events to out.
func (d *decoder) decodeWords(buf []byte, out []Event) []Event {
	for i := 0; i+wordSize <= len(buf); i += wordSize {
		out = d.step(Word(binary.LittleEndian.Uint16(buf[i:])), out)
	}
	return out
}

func (d *decoder) step(w Word, out []Event) []Event {
	t := w.Type()
	d.stats.Words++
	d.stats.ByType[t]++
	if !d.tb.initialized && t != TypeTimeHigh {
		d.stats.BeforeTimeBase++
		if !d.emitBefore {
			return out
		}
	}
	switch t {
	case TypeAddrX:
		x, pol := w.AddrX()
		out = d.emit(uint32(x), pol, out)
	case TypeVect12:
		out = d.expand(w.Vect12(), vect12Width, out)
	case TypeVect8:
		out = d.expand(w.Vect8(), vect8Width, out)
	case TypeAddrY:
		d.addrY, _ = w.AddrY()
	case TypeVectBaseX:
		d.baseX, d.polarity = w.VectBaseX()
	case TypeTimeHigh:
		d.tb.high(w.Time())
	case TypeTimeLow:
		d.tb.lowWord(w.Time())
	case TypeExtTrigger:
		d.stats.ExtTriggers++
	default:
		d.stats.Unknown++
	}
	return out
}

// expand emits one event per set bit of valid, bit 0 at baseX, then advances
// baseX by the full vector width.
func (d *decoder) expand(valid uint16, width uint16, out []Event) []Event {
	for v := valid; v != 0; v &= v - 1 {
		x := d.baseX + uint16(bits.TrailingZeros16(v))
		out = d.emit(uint32(x), d.polarity, out)
	}
	d.baseX += width
	return out
}

func (d *decoder) emit(x uint32, pol uint16, out []Event) []Event {
	ts := d.tb.current
	d.meta.observe(ts)
	d.stats.Events++
	return append(out, Event{Timestamp: ts, X: x, Y: uint32(d.addrY), Polarity: pol})
}
