package evt3

import "testing"

func TestTimeLowAfterTimeHigh(t *testing.T) {
	var tb timeBase
	tb.high(1)
	tb.lowWord(50)
	if tb.current != 4146 {
		t.Fatalf("current = %d, want 4146", tb.current)
	}
	if tb.base != 1<<12 {
		t.Fatalf("TIME_LOW must not move the base, got %d", tb.base)
	}
	tb.lowWord(7)
	if tb.current != 4096+7 {
		t.Fatalf("current = %d, want %d", tb.current, 4096+7)
	}
}

func TestTimeHighSequence(t *testing.T) {
	tests := []struct {
		name      string
		highs     []uint16
		wantBase  uint64
		wantLoops uint64
	}{
		{name: "first word initializes", highs: []uint16{0x123}, wantBase: 0x123000},
		{name: "rollover wraps forward", highs: []uint16{0xFFF, 0x000}, wantBase: TimeLoop, wantLoops: 1},
		{name: "after rollover keeps counting", highs: []uint16{0xFFF, 0x000, 0x001}, wantBase: TimeLoop + 0x1000, wantLoops: 1},
		{name: "two rollovers", highs: []uint16{0xFFF, 0x000, 0x800, 0xFFF, 0x002}, wantBase: 2*TimeLoop + 0x2000, wantLoops: 2},
		{name: "small jitter moves back", highs: []uint16{0x100, 0x0FF}, wantBase: 0x0FF000},
		{name: "threshold boundary wraps", highs: []uint16{0xFFF, 0x00A}, wantBase: TimeLoop + 0xA000, wantLoops: 1},
		{name: "just inside threshold is jitter", highs: []uint16{0xFFF, 0x00B}, wantBase: 0xB000},
		{name: "repeated word is stable", highs: []uint16{0x400, 0x400}, wantBase: 0x400000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var tb timeBase
			for _, h := range tc.highs {
				tb.high(h)
			}
			if tb.base != tc.wantBase {
				t.Fatalf("base = 0x%X, want 0x%X", tb.base, tc.wantBase)
			}
			if tb.current != tc.wantBase {
				t.Fatalf("current = 0x%X, want 0x%X", tb.current, tc.wantBase)
			}
			if tb.loops != tc.wantLoops {
				t.Fatalf("loops = %d, want %d", tb.loops, tc.wantLoops)
			}
		})
	}
}

func TestRolloverNeverMovesBackward(t *testing.T) {
	var tb timeBase
	tb.high(0xFF0)
	tb.lowWord(0xFFF)
	prev := tb.base
	for h := uint16(0); h < 0x00A; h++ {
		tb.high(h)
		if tb.base <= prev {
			t.Fatalf("high(0x%X) produced base 0x%X not after 0x%X", h, tb.base, prev)
		}
		prev = tb.base
	}
}
