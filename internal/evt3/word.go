package evt3

import "fmt"

// EventType is the 4-bit tag carried in the top nibble of every word.
type EventType uint8

const (
	TypeAddrY      EventType = 0x0
	TypeAddrX      EventType = 0x2
	TypeVectBaseX  EventType = 0x3
	TypeVect12     EventType = 0x4
	TypeVect8      EventType = 0x5
	TypeTimeLow    EventType = 0x6
	TypeTimeHigh   EventType = 0x8
	TypeExtTrigger EventType = 0xA
)

const (
	typeShift   = 12
	payloadMask = uint16(0x0FFF)

	addrMask     = uint16(0x07FF)
	flagBit11    = uint16(1) << 11
	vect12Mask   = uint16(0x0FFF)
	vect8Mask    = uint16(0x00FF)
	timeMask     = uint16(0x0FFF)
	triggerValue = uint16(0x0001)
	triggerShift = 8
	triggerMask  = uint16(0x000F)
)

func (t EventType) String() string {
	switch t {
	case TypeAddrY:
		return "ADDR_Y"
	case TypeAddrX:
		return "ADDR_X"
	case TypeVectBaseX:
		return "VECT_BASE_X"
	case TypeVect12:
		return "VECT_12"
	case TypeVect8:
		return "VECT_8"
	case TypeTimeLow:
		return "TIME_LOW"
	case TypeTimeHigh:
		return "TIME_HIGH"
	case TypeExtTrigger:
		return "EXT_TRIGGER"
	default:
		return fmt.Sprintf("0x%X", uint8(t))
	}
}

// Known reports whether the decoder interprets this tag.
func (t EventType) Known() bool {
	switch t {
	case TypeAddrY, TypeAddrX, TypeVectBaseX, TypeVect12, TypeVect8,
		TypeTimeLow, TypeTimeHigh, TypeExtTrigger:
		return true
	}
	return false
}

// Word is one raw little-endian 16-bit EVT3 word. Bits 15..12 hold the type,
// bits 11..0 the tag-specific payload.
type Word uint16

// Type extracts the tag.
func (w Word) Type() EventType {
	return EventType(uint16(w) >> typeShift)
}

// Payload returns the low 12 bits.
func (w Word) Payload() uint16 {
	return uint16(w) & payloadMask
}

// AddrY decodes an ADDR_Y word.
func (w Word) AddrY() (y uint16, origin uint16) {
	p := w.Payload()
	return p & addrMask, (p & flagBit11) >> 11
}

// AddrX decodes an ADDR_X word.
func (w Word) AddrX() (x uint16, pol uint16) {
	p := w.Payload()
	return p & addrMask, (p & flagBit11) >> 11
}

// VectBaseX decodes a VECT_BASE_X word.
func (w Word) VectBaseX() (x uint16, pol uint16) {
	p := w.Payload()
	return p & addrMask, (p & flagBit11) >> 11
}

// Vect12 returns the 12-bit validity bitmap.
func (w Word) Vect12() uint16 {
	return w.Payload() & vect12Mask
}

// Vect8 returns the 8-bit validity bitmap; bits 11..8 are unused.
func (w Word) Vect8() uint16 {
	return w.Payload() & vect8Mask
}

// Time returns the 12-bit field of a TIME_LOW or TIME_HIGH word.
func (w Word) Time() uint16 {
	return w.Payload() & timeMask
}

// ExtTrigger decodes an EXT_TRIGGER word. The decoder counts these words but
// does not surface them as events.
func (w Word) ExtTrigger() (value uint16, channel uint16) {
	p := w.Payload()
	return p & triggerValue, (p >> triggerShift) & triggerMask
}

// MakeWord assembles a word from a tag and payload. It exists for fixtures.
func MakeWord(t EventType, payload uint16) Word {
	return Word(uint16(t)<<typeShift | payload&payloadMask)
}
