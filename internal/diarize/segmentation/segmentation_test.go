package segmentation

import (
	"testing"

	"voxstream/internal/inference"
	"voxstream/internal/tensor"
)

type fakeSegModel struct {
	numFrames int
	// winner[f] selects which powerset class frame f should argmax to.
	winner []int
}

func (m *fakeSegModel) Name() string { return "fake-segmentation" }
func (m *fakeSegModel) Close()       {}

func (m *fakeSegModel) Predict(inputs inference.FeatureBundle) (inference.FeatureBundle, error) {
	out, err := tensor.Alloc([]int{1, m.numFrames, NumPowersetClasses}, tensor.F32)
	if err != nil {
		return nil, err
	}
	stride := out.Strides()[1]
	data := out.Float32()
	for f, w := range m.winner {
		data[f*stride+w] = 10
	}
	return inference.FeatureBundle{"segments": out}, nil
}

func TestProcessBinarizesPowersetArgmax(t *testing.T) {
	model := &fakeSegModel{numFrames: 4, winner: []int{0, 1, 4, 6}} // {}, {0}, {0,1}, {1,2}
	p := NewProcessor(model)

	chunk := make([]float32, ChunkSamples)
	result, err := p.Process(chunk, 2.5)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(result.Activity) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(result.Activity))
	}
	want := [][NumSlots]float32{
		{0, 0, 0},
		{1, 0, 0},
		{1, 1, 0},
		{0, 1, 1},
	}
	for f := range want {
		if result.Activity[f] != want[f] {
			t.Errorf("frame %d: got %v want %v", f, result.Activity[f], want[f])
		}
	}
	if result.Window.StartS != 2.5 {
		t.Errorf("expected window start 2.5, got %v", result.Window.StartS)
	}
}
