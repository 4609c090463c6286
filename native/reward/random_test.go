package reward

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestDrawSeedLayout(t *testing.T) {
	// 1700000000 mod 62 = 52, symbol 'Q' in the 0-9a-zA-Z alphabet.
	blockTime := time.Unix(1700000000, 123456789)
	seed := DrawSeed(42, blockTime, 900, 3)
	want := []byte("Q|42|123456789|900|3")
	if !bytes.Equal(seed, want) {
		t.Fatalf("seed = %q, want %q", seed, want)
	}
}

func TestDrawSeedDeterministic(t *testing.T) {
	blockTime := time.Unix(1700000000, 555)
	a := DrawSeed(7, blockTime, 100, 0)
	b := DrawSeed(7, blockTime, 100, 0)
	if !bytes.Equal(a, b) {
		t.Fatalf("identical inputs produced different seeds: %q vs %q", a, b)
	}
	if bytes.Equal(a, DrawSeed(8, blockTime, 100, 0)) {
		t.Fatalf("different box ids must produce different seeds")
	}
	if bytes.Equal(a, DrawSeed(7, blockTime, 100, 1)) {
		t.Fatalf("different tx indexes must produce different seeds")
	}
}

func TestDrawSeedNegativeTimeClamps(t *testing.T) {
	seed := DrawSeed(1, time.Unix(-5, 0), 0, 0)
	if seed[0] != '0' {
		t.Fatalf("pre-epoch second must clamp to the first symbol, got %q", seed[0])
	}
}

func TestDrawPointDeterministic(t *testing.T) {
	seed := DrawSeed(42, time.Unix(1700000000, 123456789), 900, 3)
	first, err := DrawPoint(seed, 21)
	if err != nil {
		t.Fatalf("draw point: %v", err)
	}
	for i := 0; i < 5; i++ {
		point, err := DrawPoint(seed, 21)
		if err != nil {
			t.Fatalf("draw point: %v", err)
		}
		if point != first {
			t.Fatalf("draw %d = %d, want %d", i, point, first)
		}
	}
	if first >= 21 {
		t.Fatalf("point %d outside span 21", first)
	}
}

func TestDrawPointZeroSpan(t *testing.T) {
	if _, err := DrawPoint([]byte("x"), 0); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted for zero span, got %v", err)
	}
}

func TestSelectBucketIntervals(t *testing.T) {
	// Remaining capacities 5, 1 and 15 lay out intervals [0,5), [5,6) and
	// [6,21).
	buckets := []Bucket{
		{Capacity: 5},
		{Capacity: 1},
		{Capacity: 15},
	}
	for _, tc := range []struct {
		point uint64
		want  int
	}{
		{0, 0},
		{4, 0},
		{5, 1},
		{6, 2},
		{20, 2},
	} {
		idx, ok := selectBucket(buckets, tc.point)
		if !ok {
			t.Fatalf("point %d: no bucket selected", tc.point)
		}
		if idx != tc.want {
			t.Fatalf("point %d: bucket %d, want %d", tc.point, idx, tc.want)
		}
	}
	if _, ok := selectBucket(buckets, 21); ok {
		t.Fatalf("point past the span must not select a bucket")
	}
}

func TestSelectBucketSkipsExhausted(t *testing.T) {
	buckets := []Bucket{
		{Capacity: 5, PaidOutCount: 5},
		{Capacity: 1},
		{Capacity: 15},
	}
	// The exhausted first bucket contributes nothing: [0,1) is bucket 1 and
	// [1,16) is bucket 2.
	if idx, ok := selectBucket(buckets, 0); !ok || idx != 1 {
		t.Fatalf("point 0: got %d %v, want bucket 1", idx, ok)
	}
	if idx, ok := selectBucket(buckets, 1); !ok || idx != 2 {
		t.Fatalf("point 1: got %d %v, want bucket 2", idx, ok)
	}
}

func TestTotalSpan(t *testing.T) {
	buckets := []Bucket{
		{Capacity: 5, PaidOutCount: 2},
		{Capacity: 1},
		{Capacity: 15, PaidOutCount: 15},
	}
	span, err := totalSpan(buckets)
	if err != nil {
		t.Fatalf("total span: %v", err)
	}
	if span != 4 {
		t.Fatalf("span = %d, want 4", span)
	}
}
