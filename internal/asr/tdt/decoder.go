package tdt

import (
	"log"

	"voxstream/internal/inference"
	"voxstream/internal/tensor"
)

// DefaultDurationSet is the fixed small set of frame jumps the joint network
// chooses from.
var DefaultDurationSet = []int{0, 1, 2, 3, 4}

// Emission is one non-blank token the decoder produced, with the encoder
// frame index it was attributed to (the frame that generated it).
type Emission struct {
	TokenID    int
	FrameIndex int
}

// Decoder runs the greedy TDT loop over one chunk's encoder output at a
// time, given a persistent State carried in by the caller.
type Decoder struct {
	predictor         inference.Model
	joint             inference.Model
	vocabSize         int
	durationSet       []int
	maxSymbolsPerStep int // 0 disables the safeguard
}

// Option configures a Decoder at construction.
type Option func(*Decoder)

// WithMaxSymbolsPerStep enables the symbol-count safeguard that caps how
// many tokens the decoder may emit at a single encoder frame before it is
// forced to advance. 0 (the default) disables it.
func WithMaxSymbolsPerStep(n int) Option {
	return func(d *Decoder) { d.maxSymbolsPerStep = n }
}

// NewDecoder builds a decoder over the given predictor and joint models.
func NewDecoder(predictor, joint inference.Model, vocabSize int, durationSet []int, opts ...Option) *Decoder {
	if durationSet == nil {
		durationSet = DefaultDurationSet
	}
	d := &Decoder{
		predictor:   predictor,
		joint:       joint,
		vocabSize:   vocabSize,
		durationSet: durationSet,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodeChunk consumes one chunk's encoder frames (effective length T) and
// returns the ordered emissions produced, mutating state in place to carry
// context into the next chunk. Deterministic given (encoder, initial state).
func (d *Decoder) DecodeChunk(encoder *tensor.Tensor, effectiveLen int, state *State) ([]Emission, error) {
	if effectiveLen < 2 {
		log.Printf("[tdt] chunk too short (T=%d), emitting empty sequence", effectiveLen)
		return nil, nil
	}

	hiddenSize := encoder.Shape()[2]
	frameStride := encoder.Strides()[1]

	timeIndex := 0
	safeTimeIndex := 0
	active := true

	inputToken := SOSID
	if state.LastToken != nil {
		inputToken = *state.LastToken
	}

	var emissions []Emission
	symbolCounter := 0
	symbolCounterIndex := -1

	for active {
		predictorOut, newH, newC, err := d.runPredictor(inputToken, state.H, state.C)
		if err != nil {
			return emissions, err
		}

		frame, err := frameAt(encoder, safeTimeIndex, frameStride, hiddenSize)
		if err != nil {
			return emissions, err
		}

		token, duration, err := d.jointArgmax(frame, predictorOut)
		if err != nil {
			return emissions, err
		}
		if token == BlankID && duration == 0 {
			duration = 1 // anti-stall
		}
		emissionFrame := timeIndex
		timeIndex += duration
		safeTimeIndex = min(timeIndex, effectiveLen-1)
		active = timeIndex < effectiveLen

		// Inner blank loop: keep advancing on the SAME predictor output
		// until a non-blank token is produced or the chunk is exhausted.
		for active && token == BlankID {
			frame, err = frameAt(encoder, safeTimeIndex, frameStride, hiddenSize)
			if err != nil {
				return emissions, err
			}
			token, duration, err = d.jointArgmax(frame, predictorOut)
			if err != nil {
				return emissions, err
			}
			if token == BlankID && duration == 0 {
				duration = 1
			}
			emissionFrame = timeIndex
			timeIndex += duration
			safeTimeIndex = min(timeIndex, effectiveLen-1)
			active = timeIndex < effectiveLen
		}

		if token != BlankID {
			emissions = append(emissions, Emission{TokenID: token, FrameIndex: emissionFrame})

			tok := token
			state.LastToken = &tok
			state.H = newH
			state.C = newC
			// Cached for State.Clone; nothing in this package reads it back
			// since inputToken already carries the value that matters.
			state.PredictorOutput = predictorOut
			inputToken = token

			if emissionFrame == symbolCounterIndex {
				symbolCounter++
			} else {
				symbolCounter = 1
				symbolCounterIndex = emissionFrame
			}
			if d.maxSymbolsPerStep > 0 && symbolCounter > d.maxSymbolsPerStep {
				timeIndex++
				safeTimeIndex = min(timeIndex, effectiveLen-1)
				active = timeIndex < effectiveLen
			}
		}
	}

	return emissions, nil
}

// frameAt returns a [1,1,H] view of the encoder tensor at time index t,
// clamping access to the caller-provided hidden size.
func frameAt(encoder *tensor.Tensor, t, frameStride, hiddenSize int) (*tensor.Tensor, error) {
	offset := t * frameStride
	return tensor.View(encoder, []int{1, 1, hiddenSize}, offset)
}

// runPredictor invokes the predictor (decoder) model once with the given
// input token and LSTM state, returning its projected output and new state.
func (d *Decoder) runPredictor(token int, h, c *tensor.Tensor) (out, newH, newC *tensor.Tensor, err error) {
	targets, err := tensor.Alloc([]int{1, 1}, tensor.I32)
	if err != nil {
		return nil, nil, nil, err
	}
	targets.Int32()[0] = int32(token)

	targetLengths, err := tensor.Alloc([]int{1}, tensor.I32)
	if err != nil {
		return nil, nil, nil, err
	}
	targetLengths.Int32()[0] = 1

	outputs, err := d.predictor.Predict(inference.FeatureBundle{
		"targets":        targets,
		"target_lengths": targetLengths,
		"h_in":           h,
		"c_in":           c,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return outputs["decoder_output"], outputs["h_out"], outputs["c_out"], nil
}

// jointArgmax runs the joint network on one encoder frame and the current
// predictor output, splitting its logits into token/duration halves and
// taking the argmax of each (ties break to the lowest index).
func (d *Decoder) jointArgmax(encFrame, predictorOut *tensor.Tensor) (token, duration int, err error) {
	outputs, err := d.joint.Predict(inference.FeatureBundle{
		"encoder_outputs": encFrame,
		"decoder_outputs": predictorOut,
	})
	if err != nil {
		return 0, 0, err
	}
	logits := outputs["logits"].Float32()
	n := outputs["logits"].ElementCount()
	logits = logits[:n]

	tokenLogits := logits[:d.vocabSize]
	durationLogits := logits[d.vocabSize : d.vocabSize+len(d.durationSet)]

	token = argmax(tokenLogits)
	duration = d.durationSet[argmax(durationLogits)]
	return token, duration, nil
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
