// Package manager implements the Diarizer manager: splits audio into
// fixed chunks, runs segmentation → embedding → tracker per chunk, and
// accumulates timed segments. Grounded on ai/diarization_sherpa.go's
// per-file diarization entry point and session/manager.go's
// single-mutex-guarded manager shape.
package manager

import (
	"time"

	"voxstream/internal/diarize/embedding"
	"voxstream/internal/diarize/segmentation"
	"voxstream/internal/diarize/tracker"
	"voxstream/internal/diarizetypes"
)

// Extractor is the subset of *embedding.Extractor the manager depends on,
// narrowed to an interface so tests can exercise Diarize against a fake
// embedding model without loading a real sherpa-onnx embedding graph.
type Extractor interface {
	Compute(waveform []float32, masks [][segmentation.NumSlots]float32, minActivity int) ([][]float32, error)
}

// Manager composes the segmentation processor, embedding extractor and
// speaker tracker into the diarize() operation.
type Manager struct {
	segmenter *segmentation.Processor
	extractor Extractor
	tracker   *tracker.Tracker

	// ChunkOverlapS is the configurable overlap between consecutive 10s
	// chunks; 0 by default.
	ChunkOverlapS float64
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithChunkOverlap sets the configurable overlap between consecutive 10s
// chunks; 0 by default.
func WithChunkOverlap(seconds float64) Option {
	return func(m *Manager) { m.ChunkOverlapS = seconds }
}

// WithTrackerThresholds overrides the speaker tracker's default thresholds,
// e.g. from process configuration.
func WithTrackerThresholds(speakerThreshold, embeddingThreshold, minSpeechDuration float64) Option {
	return func(m *Manager) {
		m.tracker.SpeakerThreshold = float32(speakerThreshold)
		m.tracker.EmbeddingThreshold = float32(embeddingThreshold)
		m.tracker.MinSpeechDuration = minSpeechDuration
	}
}

// New builds a Diarizer manager over the given segmentation/embedding
// models and a fresh speaker tracker.
func New(segmenter *segmentation.Processor, extractor Extractor, opts ...Option) *Manager {
	m := &Manager{
		segmenter: segmenter,
		extractor: extractor,
		tracker:   tracker.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitializeKnownSpeakers preregisters speakers whose ids are preserved
// verbatim.
func (m *Manager) InitializeKnownSpeakers(speakers []diarizetypes.Speaker) {
	m.tracker.InitializeKnownSpeakers(speakers)
}

// Diarize splits samples into 10s chunks (with ChunkOverlapS overlap),
// calls segmentation → embedding → tracker per chunk, and returns the
// accumulated timed segments.
func (m *Manager) Diarize(samples []float32, sampleRate int) (diarizetypes.Result, error) {
	start := time.Now()

	var segTime, embTime, trackTime time.Duration
	var allSegments []diarizetypes.TimedSpeakerSegment

	step := segmentation.ChunkSamples - int(m.ChunkOverlapS*float64(sampleRate))
	if step <= 0 {
		step = segmentation.ChunkSamples
	}

	for chunkStart := 0; chunkStart < len(samples); chunkStart += step {
		chunkEnd := chunkStart + segmentation.ChunkSamples
		var chunk []float32
		if chunkEnd > len(samples) {
			chunk = make([]float32, segmentation.ChunkSamples)
			copy(chunk, samples[chunkStart:])
		} else {
			chunk = samples[chunkStart:chunkEnd]
		}

		chunkStartS := float64(chunkStart) / float64(sampleRate)

		t0 := time.Now()
		segResult, err := m.segmenter.Process(chunk, chunkStartS)
		if err != nil {
			return diarizetypes.Result{}, err
		}
		segTime += time.Since(t0)

		masks := embedding.CleanMasks(segResult.Activity)

		t1 := time.Now()
		embeddings, err := m.extractor.Compute(chunk, masks, embedding.MinActivityThreshold)
		if err != nil {
			return diarizetypes.Result{}, err
		}
		embTime += time.Since(t1)

		t2 := time.Now()
		var slotIDs [segmentation.NumSlots]string
		slotEmbeddings := make(map[string][]float32, segmentation.NumSlots)
		for slot, vec := range embeddings {
			speechDuration := slotSpeechDuration(segResult.Activity, slot)
			if speechDuration <= 0 {
				continue
			}
			s, err := m.tracker.Assign(vec, speechDuration)
			if err != nil {
				return diarizetypes.Result{}, err
			}
			if s != nil {
				slotIDs[slot] = s.ID
				slotEmbeddings[s.ID] = vec
			}
		}

		segments := tracker.BuildSegments(segResult.Activity, segResult.Probability, segResult.Window, slotIDs, m.tracker.MinSpeechDuration)
		for i := range segments {
			segments[i].Embedding = slotEmbeddings[segments[i].SpeakerID]
		}
		allSegments = append(allSegments, segments...)
		trackTime += time.Since(t2)

		if chunkEnd >= len(samples) {
			break
		}
	}

	registry := make(map[string][]float32)
	for _, s := range m.tracker.All() {
		registry[s.ID] = s.CurrentEmbedding
	}

	return diarizetypes.Result{
		Segments:        allSegments,
		SpeakerRegistry: registry,
		Timings: diarizetypes.PipelineTimings{
			SegmentationS: segTime.Seconds(),
			EmbeddingS:    embTime.Seconds(),
			TrackingS:     trackTime.Seconds(),
			TotalS:        time.Since(start).Seconds(),
		},
	}, nil
}

// slotSpeechDuration estimates one slot's total active-frame duration
// within a chunk, the speech_duration Assign needs.
func slotSpeechDuration(activity [][segmentation.NumSlots]float32, slot int) float64 {
	frames := 0
	for _, frame := range activity {
		if frame[slot] != 0 {
			frames++
		}
	}
	return float64(frames) * segmentation.FrameStepSeconds
}
