package tokenizer

import "testing"

func TestPairLookupFastAndFallback(t *testing.T) {
	info := map[uint64]uint64{
		packPair(1, 2):       uint64(0)<<32 | 300,
		packPair(2000, 5):    uint64(7)<<32 | 2001,
		packPair(5, 1500):    uint64(9)<<32 | 2002,
		packPair(1023, 1023): uint64(3)<<32 | 2003,
	}
	pl := NewPairLookup(info, 4096)

	for key, want := range info {
		a, b := int(key>>32), int(key&0xFFFFFFFF)
		got, ok := pl.Lookup(a, b)
		if !ok || got != want {
			t.Fatalf("lookup (%d,%d): got %x,%v want %x", a, b, got, ok, want)
		}
	}

	for _, p := range [][2]int{{2, 1}, {0, 0}, {2000, 6}, {-1, 2}} {
		if _, ok := pl.Lookup(p[0], p[1]); ok {
			t.Fatalf("unexpected hit for (%d,%d)", p[0], p[1])
		}
	}

	if len(pl.fallback) != 2 {
		t.Fatalf("fallback holds %d pairs, want 2", len(pl.fallback))
	}
}

func TestPairLookupSmallVocab(t *testing.T) {
	pl := NewPairLookup(map[uint64]uint64{packPair(3, 4): 9}, 10)
	if pl.fastLookupSize != 10 {
		t.Fatalf("fast lookup size %d, want 10", pl.fastLookupSize)
	}
	if v, ok := pl.Lookup(3, 4); !ok || v != 9 {
		t.Fatalf("got %d,%v", v, ok)
	}
}
