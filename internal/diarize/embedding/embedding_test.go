package embedding

import (
	"testing"

	"voxstream/internal/diarize/segmentation"
)

func TestCleanMasksZeroesOverlappedFrames(t *testing.T) {
	activity := [][segmentation.NumSlots]float32{
		{1, 0, 0}, // single speaker: clean
		{1, 1, 0}, // overlap: suppressed
		{0, 0, 0}, // silence: clean (trivially, sum=0)
	}
	clean := CleanMasks(activity)
	if clean[0] != activity[0] {
		t.Errorf("frame 0 should pass through clean, got %v", clean[0])
	}
	if clean[1] != ([segmentation.NumSlots]float32{}) {
		t.Errorf("frame 1 should be zeroed (overlap), got %v", clean[1])
	}
	if clean[2] != activity[2] {
		t.Errorf("frame 2 should pass through clean, got %v", clean[2])
	}
}

func TestMaskWaveformZeroesInactiveFrameSamples(t *testing.T) {
	stepSamples := int(segmentation.FrameStepSeconds * SampleRate)
	waveform := make([]float32, stepSamples*3)
	for i := range waveform {
		waveform[i] = 1
	}
	masks := [][segmentation.NumSlots]float32{
		{1, 0, 0},
		{0, 0, 0}, // inactive for slot 0
		{1, 0, 0},
	}
	out := maskWaveform(waveform, masks, 0)
	widthSamples := int(segmentation.FrameWidthSeconds * SampleRate)
	start := stepSamples
	end := start + widthSamples
	if end > len(out) {
		end = len(out)
	}
	for i := start; i < end; i++ {
		if out[i] != 0 {
			t.Fatalf("expected sample %d zeroed for inactive frame 1, got %v", i, out[i])
		}
	}
	if out[0] != 1 {
		t.Errorf("expected frame 0 samples untouched, got %v", out[0])
	}
}
