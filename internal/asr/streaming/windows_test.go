package streaming

import "testing"

func TestComputeWindowsSingleShortWindow(t *testing.T) {
	n := SampleRate * 3 // 3s, well under one center window
	windows := ComputeWindows(n)
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	w := windows[0]
	if w.StartSample != 0 || w.EndSample != n {
		t.Errorf("unexpected bounds: %+v", w)
	}
	if w.StartFrameOffset != 0 {
		t.Errorf("first window must have zero offset, got %d", w.StartFrameOffset)
	}
}

func TestComputeWindowsMultipleWindowsOverlapAndOffset(t *testing.T) {
	n := centerSamples*2 + SampleRate // just past two full centers
	windows := ComputeWindows(n)
	if len(windows) < 2 {
		t.Fatalf("expected at least 2 windows, got %d", len(windows))
	}
	for i, w := range windows {
		if i == 0 {
			if w.StartFrameOffset != 0 {
				t.Errorf("window 0: expected zero offset, got %d", w.StartFrameOffset)
			}
			continue
		}
		if w.StartFrameOffset != 25 {
			t.Errorf("window %d: expected offset 25 (round(2.0*12.5)), got %d", i, w.StartFrameOffset)
		}
		if w.StartSample >= windows[i-1].EndSample {
			t.Errorf("window %d does not overlap with its predecessor: start=%d prevEnd=%d", i, w.StartSample, windows[i-1].EndSample)
		}
	}
	last := windows[len(windows)-1]
	if last.EndSample != n {
		t.Errorf("last window should end exactly at n=%d, got %d", n, last.EndSample)
	}
}

func TestPadToWindowPreservesPrefixAndZeroPads(t *testing.T) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = float32(i + 1)
	}
	padded := PadToWindow(samples)
	if len(padded) != MaxWindowSamples {
		t.Fatalf("expected length %d, got %d", MaxWindowSamples, len(padded))
	}
	for i := range samples {
		if padded[i] != samples[i] {
			t.Errorf("prefix mismatch at %d: got %v want %v", i, padded[i], samples[i])
		}
	}
	for i := len(samples); i < len(padded); i++ {
		if padded[i] != 0 {
			t.Errorf("expected zero padding at %d, got %v", i, padded[i])
		}
	}
}
