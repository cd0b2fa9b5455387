package manager

import (
	"testing"

	"voxstream/internal/diarize/segmentation"
	"voxstream/internal/diarizetypes"
	"voxstream/internal/inference"
	"voxstream/internal/tensor"
)

// fakeSegModel drives the segmentation model with a scripted winning
// powerset class per chunk call, cycling through scripted frames: every
// frame in a chunk gets the same winner, which is enough to drive whole
// chunks "active" or "silent" for the manager-level scenarios below.
type fakeSegModel struct {
	numFrames int
	winner    int
	calls     int
}

func (m *fakeSegModel) Name() string { return "fake-segmentation" }
func (m *fakeSegModel) Close()       {}

func (m *fakeSegModel) Predict(inputs inference.FeatureBundle) (inference.FeatureBundle, error) {
	m.calls++
	out, err := tensor.Alloc([]int{1, m.numFrames, segmentation.NumPowersetClasses}, tensor.F32)
	if err != nil {
		return nil, err
	}
	stride := out.Strides()[1]
	data := out.Float32()
	for f := 0; f < m.numFrames; f++ {
		data[f*stride+m.winner] = 10
	}
	return inference.FeatureBundle{"segments": out}, nil
}

// fakeExtractor returns a fixed embedding per slot, ignoring the waveform,
// so the manager-level tests can drive the tracker deterministically.
type fakeExtractor struct {
	vec [256]float32
}

func (f *fakeExtractor) Compute(waveform []float32, masks [][segmentation.NumSlots]float32, minActivity int) ([][]float32, error) {
	out := make([][]float32, segmentation.NumSlots)
	for slot := 0; slot < segmentation.NumSlots; slot++ {
		active := 0
		for _, m := range masks {
			if m[slot] != 0 {
				active++
			}
		}
		if active < minActivity {
			out[slot] = make([]float32, 256)
			continue
		}
		v := make([]float32, 256)
		copy(v, f.vec[:])
		out[slot] = v
	}
	return out, nil
}

func unitVec(hot int) [256]float32 {
	var v [256]float32
	v[hot] = 1
	return v
}

// numFramesFor10s matches the frame count a real segmentation model would
// emit for a 10s chunk at the spec's fixed 16.875ms frame step, rounded
// down — exact value doesn't matter for these tests beyond being large
// enough to clear MinActivityFrames.
const numFramesFor10s = 592

func TestDiarizeSingleSpeakerTwelveSeconds(t *testing.T) {
	segModel := &fakeSegModel{numFrames: numFramesFor10s, winner: 1} // {0} active throughout
	mgr := New(segmentation.NewProcessor(segModel), &fakeExtractor{vec: unitVec(0)})

	samples := make([]float32, 12*16000)
	result, err := mgr.Diarize(samples, 16000)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}

	speakers := map[string]bool{}
	for _, seg := range result.Segments {
		speakers[seg.SpeakerID] = true
		if seg.EndS <= seg.StartS {
			t.Errorf("segment has non-positive duration: %+v", seg)
		}
	}
	if len(speakers) != 1 {
		t.Fatalf("expected exactly 1 speaker, got %d: %v", len(speakers), speakers)
	}
	if len(result.SpeakerRegistry) != 1 {
		t.Errorf("expected registry with 1 speaker, got %d", len(result.SpeakerRegistry))
	}
}

func TestDiarizeAllZeroSegmentationYieldsNoSegments(t *testing.T) {
	segModel := &fakeSegModel{numFrames: numFramesFor10s, winner: 0} // {} (silence) throughout
	mgr := New(segmentation.NewProcessor(segModel), &fakeExtractor{vec: unitVec(0)})

	samples := make([]float32, 10*16000)
	result, err := mgr.Diarize(samples, 16000)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(result.Segments) != 0 {
		t.Errorf("expected 0 segments for all-silent input, got %d", len(result.Segments))
	}
	if len(result.SpeakerRegistry) != 0 {
		t.Errorf("expected empty registry, got %d entries", len(result.SpeakerRegistry))
	}
}

func TestInitializeKnownSpeakersPreservesIDsAcrossDiarize(t *testing.T) {
	segModel := &fakeSegModel{numFrames: numFramesFor10s, winner: 1}
	mgr := New(segmentation.NewProcessor(segModel), &fakeExtractor{vec: unitVec(5)})

	knownVec := make([]float32, 256)
	knownVec[5] = 1
	mgr.InitializeKnownSpeakers([]diarizetypes.Speaker{
		{ID: "42", CurrentEmbedding: knownVec},
	})

	samples := make([]float32, 10*16000)
	result, err := mgr.Diarize(samples, 16000)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	for _, seg := range result.Segments {
		if seg.SpeakerID != "42" {
			t.Errorf("expected matched segment to keep preregistered id 42, got %s", seg.SpeakerID)
		}
	}
	if _, ok := result.SpeakerRegistry["42"]; !ok {
		t.Errorf("expected registry to retain preregistered speaker 42, got %v", result.SpeakerRegistry)
	}
}
