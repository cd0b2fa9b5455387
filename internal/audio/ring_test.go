package audio

import "testing"

func samplesOf(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestAppendTakeChunkRoundTrip(t *testing.T) {
	r := NewRing(100)
	x := samplesOf(10, 1)
	if err := r.Append(x); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, ok := r.TakeChunk(len(x))
	if !ok {
		t.Fatalf("expected chunk available")
	}
	for i := range x {
		if got[i] != x[i] {
			t.Errorf("sample %d: got %v want %v", i, got[i], x[i])
		}
	}
}

func TestTakeChunkInsufficientData(t *testing.T) {
	r := NewRing(100)
	r.Append(samplesOf(5, 0))
	if _, ok := r.TakeChunk(10); ok {
		t.Errorf("expected TakeChunk to fail with insufficient data")
	}
}

func TestOverflowDiscardsOldest(t *testing.T) {
	r := NewRing(10)
	r.Append(samplesOf(10, 0)) // 0..9
	r.Append(samplesOf(5, 100)) // should discard 0..4, keep 5..9, then append 100..104
	got := r.PeekAll()
	want := append(samplesOf(5, 5), samplesOf(5, 100)...)
	if len(got) != len(want) {
		t.Fatalf("len mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestAppendLargerThanCapacityOverflows(t *testing.T) {
	r := NewRing(4)
	if err := r.Append(samplesOf(5, 0)); err == nil {
		t.Errorf("expected overflow error for write larger than capacity")
	}
}

func TestTakePartialDrainsWhatIsAvailable(t *testing.T) {
	r := NewRing(100)
	r.Append(samplesOf(3, 0))
	got, ok := r.TakePartial(10)
	if !ok {
		t.Fatalf("expected partial data available")
	}
	if len(got) != 3 {
		t.Errorf("expected 3 samples, got %d", len(got))
	}
	if r.Len() != 0 {
		t.Errorf("expected ring drained, Len=%d", r.Len())
	}
}
