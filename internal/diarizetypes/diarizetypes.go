// Package diarizetypes holds the value objects the diarizer manager and
// speaker tracker exchange: speaker profiles, timed speaker segments, and
// the diarize() result envelope.
package diarizetypes

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDim is the fixed dimensionality of speaker embeddings.
const EmbeddingDim = 256

// RawEmbedding is one embedding observation folded into a speaker's
// history: a 256-dim vector plus the segment it came from.
type RawEmbedding struct {
	SegmentID uuid.UUID
	Vector    []float32
	Timestamp time.Time
}

// Speaker is the identity record the tracker maintains.
type Speaker struct {
	ID               string
	Name             string
	CurrentEmbedding []float32
	Duration         float64
	RawEmbeddings    []RawEmbedding // bounded FIFO, at most 50
	UpdateCount      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MaxRawEmbeddings bounds the FIFO of raw embeddings kept per speaker.
const MaxRawEmbeddings = 50

// TimedSpeakerSegment is one attributed span of speech.
type TimedSpeakerSegment struct {
	SpeakerID string
	Embedding []float32
	StartS    float64
	EndS      float64
	Quality   float32
}

// Result is the immutable value diarize() returns.
type Result struct {
	Segments        []TimedSpeakerSegment
	SpeakerRegistry map[string][]float32
	Timings         PipelineTimings
}

// PipelineTimings records how long each stage of one diarize() call took,
// for callers that want latency visibility without re-instrumenting.
type PipelineTimings struct {
	SegmentationS float64
	EmbeddingS    float64
	TrackingS     float64
	TotalS        float64
}
