// Package tdt implements the Token-and-Duration Transducer decoder: a
// stateful greedy decoder over encoder frames that emits tokens plus a
// per-token frame index, maintaining recurrent predictor state across
// audio chunks. Grounded on the autoregressive greedy transducer loop in
// ai/gigaam_rnnt.go's decodeRNNT, generalized with a duration head, an
// anti-stall rule, and a symbol-count safeguard.
package tdt

import "voxstream/internal/tensor"

// BlankID and SOSID share the same integer value by construction: blank is
// an emitted-output id, SOS is the initial predictor-input id used only
// when no previous token exists yet. The two never diverge in this
// implementation; if the vocabulary ever grows a true reserved SOS symbol,
// SOSID should be split out as its own constant at that point, not before.
const (
	BlankID = 1024
	SOSID   = 1024
)

// PredictorHiddenSize is the LSTM hidden/cell dimension.
const PredictorHiddenSize = 640

// State is the predictor's recurrent state, carried across decode chunks.
// At rest it is either all-zero (fresh Reset) or exactly the output of the
// predictor's previous invocation.
type State struct {
	H, C      *tensor.Tensor // [2,1,640] f32 each
	LastToken *int           // context token for the next chunk's first predictor call; nil at utterance start
	// PredictorOutput caches the predictor projection associated with
	// LastToken so Clone can snapshot it; DecodeChunk itself never reads it
	// back, since inputToken already carries what the next call needs.
	PredictorOutput *tensor.Tensor
	// TimeJump is a slot for a signed frame overshoot/undershoot at a chunk
	// boundary. DecodeChunk does not set it; Reset clears it and Clone
	// copies it.
	TimeJump *int
}

// NewState returns a freshly zeroed predictor state.
func NewState() (*State, error) {
	h, err := tensor.Alloc([]int{2, 1, PredictorHiddenSize}, tensor.F32)
	if err != nil {
		return nil, err
	}
	c, err := tensor.Alloc([]int{2, 1, PredictorHiddenSize}, tensor.F32)
	if err != nil {
		return nil, err
	}
	return &State{H: h, C: c}, nil
}

// Reset zeroes the state back to its fresh-utterance form.
func (s *State) Reset() {
	s.H.Zero()
	s.C.Zero()
	s.LastToken = nil
	s.PredictorOutput = nil
	s.TimeJump = nil
}

// Clone deep-copies the state so a caller can snapshot it across a
// cancellation boundary, since the decoder's own state is never rewound.
func (s *State) Clone() (*State, error) {
	h, err := tensor.Alloc(s.H.Shape(), tensor.F32)
	if err != nil {
		return nil, err
	}
	copy(h.Float32(), s.H.Float32())
	c, err := tensor.Alloc(s.C.Shape(), tensor.F32)
	if err != nil {
		return nil, err
	}
	copy(c.Float32(), s.C.Float32())

	clone := &State{H: h, C: c}
	if s.LastToken != nil {
		tok := *s.LastToken
		clone.LastToken = &tok
	}
	if s.TimeJump != nil {
		jump := *s.TimeJump
		clone.TimeJump = &jump
	}
	if s.PredictorOutput != nil {
		po, err := tensor.Alloc(s.PredictorOutput.Shape(), tensor.F32)
		if err != nil {
			return nil, err
		}
		copy(po.Float32(), s.PredictorOutput.Float32())
		clone.PredictorOutput = po
	}
	return clone, nil
}
