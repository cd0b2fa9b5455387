package streaming

import (
	"os"
	"path/filepath"
	"testing"

	"voxstream/internal/asr/tdt"
	"voxstream/internal/asr/vocab"
	"voxstream/internal/inference"
	"voxstream/internal/tensor"
)

// testVocabSize must exceed tdt.BlankID (1024) so the fake joint below can
// legitimately place the blank logit at its real id.
const testVocabSize = 1025
const testHiddenSize = 8

// fakeMel mimics the mel-spectrogram model's I/O contract without doing
// any real signal processing: it reports effective length as exactly the
// input's actual_length, scaled to frames.
type fakeMel struct{}

func (fakeMel) Name() string { return "fake-mel" }
func (fakeMel) Close()       {}

func (fakeMel) Predict(inputs inference.FeatureBundle) (inference.FeatureBundle, error) {
	actualLength := int(inputs["audio_length"].Int32()[0])
	frames := int(float64(actualLength) / SampleRate * FrameRateHz)
	if frames < 1 {
		frames = 1
	}
	mel, err := tensor.Alloc([]int{1, frames, 80}, tensor.F32)
	if err != nil {
		return nil, err
	}
	melLen, err := tensor.Alloc([]int{1}, tensor.I32)
	if err != nil {
		return nil, err
	}
	melLen.Int32()[0] = int32(frames)
	return inference.FeatureBundle{"melspectrogram": mel, "melspectrogram_length": melLen}, nil
}

// fakeEncoder passes the frame count straight through, i.e. the encoder
// does not itself downsample further in this test double.
type fakeEncoder struct{}

func (fakeEncoder) Name() string { return "fake-encoder" }
func (fakeEncoder) Close()       {}

func (fakeEncoder) Predict(inputs inference.FeatureBundle) (inference.FeatureBundle, error) {
	length := inputs["length"].Int32()[0]
	out, err := tensor.Alloc([]int{1, int(length), testHiddenSize}, tensor.F32)
	if err != nil {
		return nil, err
	}
	outLen, err := tensor.Alloc([]int{1}, tensor.I32)
	if err != nil {
		return nil, err
	}
	outLen.Int32()[0] = length
	return inference.FeatureBundle{"encoder_output": out, "encoder_output_length": outLen}, nil
}

type fakePredictor struct{}

func (fakePredictor) Name() string { return "fake-predictor" }
func (fakePredictor) Close()       {}

func (fakePredictor) Predict(inputs inference.FeatureBundle) (inference.FeatureBundle, error) {
	h, c := inputs["h_in"], inputs["c_in"]
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
	out, err := tensor.Alloc([]int{1, testHiddenSize}, tensor.F32)
	if err != nil {
		return nil, err
	}
	return inference.FeatureBundle{"decoder_output": out, "h_out": outH, "c_out": outC}, nil
}

// alwaysBlankJoint always emits (blank, duration=1): the decoder should
// advance to completion without emitting anything.
type alwaysBlankJoint struct{}

func (alwaysBlankJoint) Name() string { return "fake-joint" }
func (alwaysBlankJoint) Close()       {}

func (alwaysBlankJoint) Predict(inputs inference.FeatureBundle) (inference.FeatureBundle, error) {
	logits, err := tensor.Alloc([]int{testVocabSize + len(tdt.DefaultDurationSet)}, tensor.F32)
	if err != nil {
		return nil, err
	}
	data := logits.Float32()
	data[tdt.BlankID] = 10     // token argmax lands on blank
	data[testVocabSize+1] = 10 // duration index 1 -> duration 1
	return inference.FeatureBundle{"logits": logits}, nil
}

func writeVocabFile(t *testing.T, tokens []string) *vocab.Vocabulary {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	var content string
	for _, tok := range tokens {
		content += tok + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	v, err := vocab.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return v
}

func TestProcessorSingleWindowAlwaysBlankProducesEmptyResult(t *testing.T) {
	v := writeVocabFile(t, []string{"▁a", "▁b", "▁c", "▁d"})
	decoder := tdt.NewDecoder(fakePredictor{}, alwaysBlankJoint{}, testVocabSize, tdt.DefaultDurationSet)
	proc := NewChunkProcessor(fakeMel{}, fakeEncoder{}, decoder, v)

	state, err := tdt.NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	samples := make([]float32, SampleRate*3)
	result, err := proc.Process(samples, state)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Text != "" {
		t.Errorf("expected empty text for all-blank decode, got %q", result.Text)
	}
	if len(result.Tokens) != 0 {
		t.Errorf("expected no tokens, got %v", result.Tokens)
	}
}

func TestProcessorMultiWindowRunsEachWindowThroughTheChain(t *testing.T) {
	v := writeVocabFile(t, []string{"▁a", "▁b", "▁c", "▁d"})
	decoder := tdt.NewDecoder(fakePredictor{}, alwaysBlankJoint{}, testVocabSize, tdt.DefaultDurationSet)
	proc := NewChunkProcessor(fakeMel{}, fakeEncoder{}, decoder, v)

	state, err := tdt.NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	samples := make([]float32, centerSamples*2+SampleRate)
	result, err := proc.Process(samples, state)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(result.Tokens) != 0 {
		t.Errorf("expected no tokens from all-blank joint, got %v", result.Tokens)
	}
}
