package tdt

import (
	"testing"

	"voxstream/internal/inference"
	"voxstream/internal/tensor"
)

const testHidden = 8

type constPredictor struct{}

func (p *constPredictor) Name() string { return "fake-predictor" }
func (p *constPredictor) Close()       {}

func (p *constPredictor) Predict(inputs inference.FeatureBundle) (inference.FeatureBundle, error) {
	h := inputs["h_in"]
	c := inputs["c_in"]
	outH, err := tensor.Alloc(h.Shape(), tensor.F32)
	if err != nil {
		return nil, err
	}
	copy(outH.Float32(), h.Float32())
	outC, err := tensor.Alloc(c.Shape(), tensor.F32)
	if err != nil {
		return nil, err
	}
	copy(outC.Float32(), c.Float32())
	out, err := tensor.Alloc([]int{1, testHidden}, tensor.F32)
	if err != nil {
		return nil, err
	}
	return inference.FeatureBundle{"decoder_output": out, "h_out": outH, "c_out": outC}, nil
}

type scriptEntry struct {
	token, duration int
}

type scriptedJoint struct {
	script      []scriptEntry
	calls       int
	vocabSize   int
	durationSet []int
}

func (j *scriptedJoint) Name() string { return "fake-joint" }
func (j *scriptedJoint) Close()       {}

func (j *scriptedJoint) Predict(inputs inference.FeatureBundle) (inference.FeatureBundle, error) {
	entry := scriptEntry{token: BlankID, duration: 1}
	if j.calls < len(j.script) {
		entry = j.script[j.calls]
	}
	j.calls++

	durIdx := 0
	for i, d := range j.durationSet {
		if d == entry.duration {
			durIdx = i
			break
		}
	}

	logits, err := tensor.Alloc([]int{j.vocabSize + len(j.durationSet)}, tensor.F32)
	if err != nil {
		return nil, err
	}
	data := logits.Float32()
	data[entry.token] = 10
	data[j.vocabSize+durIdx] = 10
	return inference.FeatureBundle{"logits": logits}, nil
}

func newEncoder(t *testing.T, effectiveLen int) *tensor.Tensor {
	t.Helper()
	enc, err := tensor.Alloc([]int{1, effectiveLen, testHidden}, tensor.F32)
	if err != nil {
		t.Fatalf("alloc encoder: %v", err)
	}
	return enc
}

func TestDecoderAlwaysBlankExitsAfterTFrames(t *testing.T) {
	const T = 6
	joint := &scriptedJoint{
		script:      []scriptEntry{{token: BlankID, duration: 0}},
		vocabSize:   10,
		durationSet: DefaultDurationSet,
	}
	d := NewDecoder(&constPredictor{}, joint, 10, DefaultDurationSet)

	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	emissions, err := d.DecodeChunk(newEncoder(t, T), T, state)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if len(emissions) != 0 {
		t.Errorf("expected no emissions, got %v", emissions)
	}
	if joint.calls != T {
		t.Errorf("expected exactly %d joint steps, got %d", T, joint.calls)
	}
}

func TestDecoderEmitsKnownTokensWithTimestampsInRange(t *testing.T) {
	const T = 10
	script := []scriptEntry{
		{token: 3, duration: 2},
		{token: BlankID, duration: 0},
		{token: BlankID, duration: 2},
		{token: 6, duration: 1},
		{token: BlankID, duration: 3},
		{token: BlankID, duration: 0},
	}
	joint := &scriptedJoint{script: script, vocabSize: 10, durationSet: DefaultDurationSet}
	d := NewDecoder(&constPredictor{}, joint, 10, DefaultDurationSet)

	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	emissions, err := d.DecodeChunk(newEncoder(t, T), T, state)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}

	want := []Emission{{TokenID: 3, FrameIndex: 0}, {TokenID: 6, FrameIndex: 5}}
	if len(emissions) != len(want) {
		t.Fatalf("expected %d emissions, got %d: %v", len(want), len(emissions), emissions)
	}
	for i, e := range emissions {
		if e != want[i] {
			t.Errorf("emission %d: got %+v want %+v", i, e, want[i])
		}
		if e.FrameIndex < 0 || e.FrameIndex >= T {
			t.Errorf("emission %d timestamp %d out of [0,%d)", i, e.FrameIndex, T)
		}
	}

	if state.LastToken == nil || *state.LastToken != 6 {
		t.Errorf("expected persisted last_token=6, got %v", state.LastToken)
	}
}

func TestDecoderShortChunkReturnsEmpty(t *testing.T) {
	joint := &scriptedJoint{vocabSize: 10, durationSet: DefaultDurationSet}
	d := NewDecoder(&constPredictor{}, joint, 10, DefaultDurationSet)
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	emissions, err := d.DecodeChunk(newEncoder(t, 1), 1, state)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if len(emissions) != 0 {
		t.Errorf("expected empty sequence for T<2, got %v", emissions)
	}
}

func TestDecoderSymbolCountSafeguard(t *testing.T) {
	// Joint that always emits a non-blank token with duration 0: without the
	// safeguard this never advances time_index.
	script := make([]scriptEntry, 64)
	for i := range script {
		script[i] = scriptEntry{token: 2, duration: 0}
	}
	joint := &scriptedJoint{
		script:      script,
		vocabSize:   10,
		durationSet: DefaultDurationSet,
	}
	d := NewDecoder(&constPredictor{}, joint, 10, DefaultDurationSet, WithMaxSymbolsPerStep(3))
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	const T = 5
	emissions, err := d.DecodeChunk(newEncoder(t, T), T, state)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if len(emissions) == 0 {
		t.Fatalf("expected some emissions before the safeguard forced advancement")
	}
	// every 4th emission onward at the same frame should have been preempted
	// by forcing time_index forward; just assert timestamps stay monotonic
	// and in range, and that the loop actually terminated.
	for i := 1; i < len(emissions); i++ {
		if emissions[i].FrameIndex < emissions[i-1].FrameIndex {
			t.Errorf("frame index must be monotonic non-decreasing, got %v", emissions)
		}
	}
}
