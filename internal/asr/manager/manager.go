// Package manager implements the ASR manager: composes the
// mel/encoder/decoder/vocab/streaming chain and owns two independent
// predictor-state slots, one per audio source, so that a microphone stream
// and a system-audio stream can be transcribed concurrently without state
// contamination. Grounded on ai/engine_manager.go's single-active-engine
// mutex pattern and session/manager.go's per-source state discipline.
package manager

import (
	"fmt"
	"sync"
	"time"

	"voxstream/internal/asr/streaming"
	"voxstream/internal/asr/tdt"
	"voxstream/internal/asr/vocab"
	"voxstream/internal/asrtypes"
	"voxstream/internal/errs"
)

// MinAudioSeconds is the minimum accepted audio duration.
const MinAudioSeconds = 1.0

// SampleRate is the fixed input sample rate.
const SampleRate = 16000

// Manager owns per-source predictor state and dispatches transcribe calls
// through a shared ChunkProcessor.
type Manager struct {
	processor *streaming.ChunkProcessor

	mu     sync.Mutex
	states map[asrtypes.Source]*tdt.State
}

// New builds an ASR manager over the given chunk processor, one fresh
// predictor state per known source.
func New(processor *streaming.ChunkProcessor) (*Manager, error) {
	m := &Manager{
		processor: processor,
		states:    make(map[asrtypes.Source]*tdt.State),
	}
	for _, src := range []asrtypes.Source{asrtypes.SourceMicrophone, asrtypes.SourceSystem} {
		state, err := tdt.NewState()
		if err != nil {
			return nil, err
		}
		m.states[src] = state
	}
	return m, nil
}

// stateFor returns the exclusive predictor state for source, serialized
// under m.mu only for the lookup itself — state mutation during transcribe
// happens on the caller's own goroutine, not under this lock.
func (m *Manager) stateFor(source asrtypes.Source) (*tdt.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[source]
	if !ok {
		return nil, fmt.Errorf("asr manager: unknown source %q", source)
	}
	return state, nil
}

// Transcribe runs the full windowed mel→encoder→decoder→vocab chain over
// samples, carrying source's predictor state across this and future calls.
// Audio shorter than MinAudioSeconds is rejected.
func (m *Manager) Transcribe(samples []float32, source asrtypes.Source) (asrtypes.Result, error) {
	start := time.Now()

	durationS := float64(len(samples)) / SampleRate
	if durationS < MinAudioSeconds {
		return asrtypes.Result{}, errs.ErrInvalidAudioData
	}

	state, err := m.stateFor(source)
	if err != nil {
		return asrtypes.Result{}, err
	}

	result, err := m.processor.Process(samples, state)
	if err != nil {
		return asrtypes.Result{}, err
	}

	confidence := vocab.Confidence(len(result.Tokens), durationS)

	return asrtypes.Result{
		Text:            result.Text,
		Confidence:      confidence,
		DurationS:       durationS,
		ProcessingTimeS: time.Since(start).Seconds(),
		TokenTimings:    result.Timings,
	}, nil
}

// ResetState zeroes source's predictor state back to a fresh-utterance
// form.
func (m *Manager) ResetState(source asrtypes.Source) error {
	state, err := m.stateFor(source)
	if err != nil {
		return err
	}
	state.Reset()
	return nil
}
