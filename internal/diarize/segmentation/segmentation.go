// Package segmentation implements the segmentation processor: runs the
// segmentation model on fixed 10s chunks and converts its "powerset"
// multi-speaker output into a binary per-frame activity matrix. Grounded
// on the segmentation half of ai/diarization_sherpa.go's
// SherpaDiarizerConfig, but operating on the model's raw `audio`→`segments`
// logits directly rather than sherpa-onnx-go's monolithic
// OfflineSpeakerDiarization pipeline, since this component must own the
// powerset→binary conversion itself.
package segmentation

import (
	"math"

	"voxstream/internal/inference"
	"voxstream/internal/tensor"
)

const (
	// ChunkSamples is the fixed input length the segmentation model expects
	// (10s at 16kHz).
	ChunkSamples = 160000

	// NumSlots is the number of local speaker slots the model tracks per
	// chunk.
	NumSlots = 3

	// NumPowersetClasses is the number of powerset logit classes the model
	// emits per frame.
	NumPowersetClasses = 7

	// FrameStepSeconds and FrameWidthSeconds describe the segmentation
	// model's fixed frame geometry.
	FrameStepSeconds  = 0.016875
	FrameWidthSeconds = 0.06194
)

// powersetOrder lists, for each of the 7 powerset classes, which speaker
// slots (0-based) are active.
var powersetOrder = [NumPowersetClasses][]int{
	{},     // {}
	{0},    // {0}
	{1},    // {1}
	{2},    // {2}
	{0, 1}, // {0,1}
	{0, 2}, // {0,2}
	{1, 2}, // {1,2}
}

// Window carries the sliding-window metadata attached to one chunk's
// output: its chunk offset and fixed receptive duration.
type Window struct {
	StartS   float64
	Duration float64
}

// Result is one chunk's binarized activity matrix, [F][NumSlots], plus its
// window metadata.
type Result struct {
	Activity    [][NumSlots]float32 // binary: 0 or 1 per (frame, slot)
	Probability [][NumSlots]float32 // continuous per-slot marginal, softmax mass summed over every powerset class containing that slot
	Window      Window
}

// Processor wraps the segmentation model.
type Processor struct {
	model inference.Model
}

// NewProcessor adapts a segmentation Model to the Processor contract.
func NewProcessor(model inference.Model) *Processor {
	return &Processor{model: model}
}

// Process runs the segmentation model over exactly one 10s chunk and
// binarizes its powerset output. chunkStartS is the chunk's offset within
// the full audio buffer, used only for Window metadata.
func (p *Processor) Process(chunk []float32, chunkStartS float64) (Result, error) {
	audio, err := tensor.Alloc([]int{1, 1, ChunkSamples}, tensor.F32)
	if err != nil {
		return Result{}, err
	}
	copy(audio.Float32(), chunk)

	out, err := p.model.Predict(inference.FeatureBundle{"audio": audio})
	if err != nil {
		return Result{}, err
	}

	segments := out["segments"]
	numFrames := segments.Shape()[1]
	logits := segments.Float32()
	stride := segments.Strides()[1]

	activity := make([][NumSlots]float32, numFrames)
	probability := make([][NumSlots]float32, numFrames)
	for f := 0; f < numFrames; f++ {
		frame := logits[f*stride : f*stride+NumPowersetClasses]
		best := argmax(frame)
		for _, slot := range powersetOrder[best] {
			activity[f][slot] = 1
		}

		probs := softmax(frame)
		for class, mass := range probs {
			for _, slot := range powersetOrder[class] {
				probability[f][slot] += mass
			}
		}
	}

	return Result{
		Activity:    activity,
		Probability: probability,
		Window:      Window{StartS: chunkStartS, Duration: FrameWidthSeconds},
	}, nil
}

func argmax(xs []float32) int {
	best := 0
	bestVal := xs[0]
	for i, v := range xs[1:] {
		if v > bestVal {
			bestVal = v
			best = i + 1
		}
	}
	return best
}

// softmax computes a numerically-stable softmax over one frame's powerset
// logits, used to derive the continuous per-slot marginal in Probability.
func softmax(logits []float32) []float32 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		e := float32(math.Exp(float64(v - max)))
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
