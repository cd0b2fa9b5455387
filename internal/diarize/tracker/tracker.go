// Package tracker implements the incremental speaker tracker: assignment
// by cosine distance, EMA embedding update, FIFO-bounded raw-embedding
// history, and segment construction from a segmentation activity matrix.
// Grounded on voiceprint/store.go's weighted-average UpdateEmbedding and
// normalizeVector, generalized to EMA/threshold/FIFO rules, with vector
// math via gonum/floats.
package tracker

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"voxstream/internal/diarize/segmentation"
	"voxstream/internal/diarizetypes"
)

// Defaults for the tracker's threshold parameters.
const (
	DefaultSpeakerThreshold   = 0.5
	DefaultEmbeddingThreshold = 0.3
	DefaultMinSpeechDuration  = 0.5 // seconds
	EMAAlpha                  = 0.9
	OverlapHighThreshold      = 0.30
	OverlapLowThreshold       = 0.15
	MinActivityFrames         = 10
)

// Tracker holds the speaker registry and assignment thresholds.
type Tracker struct {
	mu     sync.RWMutex // write-priority: Assign/Merge hold it exclusively
	nextID int
	byID   map[string]*diarizetypes.Speaker

	SpeakerThreshold   float32
	EmbeddingThreshold float32
	MinSpeechDuration  float64
}

// New returns a Tracker with an empty registry and the spec's default
// thresholds.
func New() *Tracker {
	return &Tracker{
		byID:               make(map[string]*diarizetypes.Speaker),
		nextID:             1,
		SpeakerThreshold:   DefaultSpeakerThreshold,
		EmbeddingThreshold: DefaultEmbeddingThreshold,
		MinSpeechDuration:  DefaultMinSpeechDuration,
	}
}

// InitializeKnownSpeakers preregisters speakers with externally-assigned
// ids, preserved verbatim; next_id advances past any numeric collision.
func (t *Tracker) InitializeKnownSpeakers(speakers []diarizetypes.Speaker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for _, s := range speakers {
		sp := s
		if sp.CreatedAt.IsZero() {
			sp.CreatedAt = now
		}
		if sp.UpdatedAt.IsZero() {
			sp.UpdatedAt = now
		}
		t.byID[sp.ID] = &sp
		if n, err := strconv.Atoi(sp.ID); err == nil && n >= t.nextID {
			t.nextID = n + 1
		}
	}
}

// CosineDistance computes 1 - cosine similarity, returning +Inf if either
// vector has zero magnitude or their lengths mismatch.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	na := floats.Norm(toF64(a), 2)
	nb := floats.Norm(toF64(b), 2)
	if na == 0 || nb == 0 {
		return math.Inf(1)
	}
	dot := floats.Dot(toF64(a), toF64(b))
	return 1 - dot/(na*nb)
}

func toF64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func magnitude(v []float32) float64 {
	return floats.Norm(toF64(v), 2)
}

// Assign matches the embedding against the registry, updates or creates a
// speaker, or returns nil if neither applies.
func (t *Tracker) Assign(embedding []float32, speechDuration float64) (*diarizetypes.Speaker, error) {
	if len(embedding) != diarizetypes.EmbeddingDim {
		return nil, fmt.Errorf("tracker: embedding length %d, want %d", len(embedding), diarizetypes.EmbeddingDim)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.byID) == 0 {
		if speechDuration >= t.MinSpeechDuration {
			return t.createLocked(embedding, speechDuration), nil
		}
		return nil, nil
	}

	var best *diarizetypes.Speaker
	bestDist := math.Inf(1)
	for _, s := range t.byID {
		d := CosineDistance(embedding, s.CurrentEmbedding)
		if d < bestDist {
			bestDist = d
			best = s
		}
	}

	if bestDist < float64(t.SpeakerThreshold) {
		if bestDist < float64(t.EmbeddingThreshold) && magnitude(embedding) > 0.1 {
			t.updateLocked(best, embedding, speechDuration)
		} else {
			t.observeLocked(best, speechDuration)
		}
		return best, nil
	}

	if speechDuration >= t.MinSpeechDuration {
		return t.createLocked(embedding, speechDuration), nil
	}
	return nil, nil
}

func (t *Tracker) createLocked(embedding []float32, speechDuration float64) *diarizetypes.Speaker {
	id := strconv.Itoa(t.nextID)
	t.nextID++

	now := time.Now()
	vec := append([]float32(nil), embedding...)
	s := &diarizetypes.Speaker{
		ID:               id,
		Name:             id,
		CurrentEmbedding: vec,
		Duration:         speechDuration,
		RawEmbeddings: []diarizetypes.RawEmbedding{{
			SegmentID: uuid.New(),
			Vector:    append([]float32(nil), embedding...),
			Timestamp: now,
		}},
		UpdateCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.byID[id] = s
	return s
}

// updateLocked applies the EMA embedding update.
func (t *Tracker) updateLocked(s *diarizetypes.Speaker, embedding []float32, speechDuration float64) {
	for i := range s.CurrentEmbedding {
		s.CurrentEmbedding[i] = float32(EMAAlpha)*s.CurrentEmbedding[i] + float32(1-EMAAlpha)*embedding[i]
	}

	s.RawEmbeddings = append(s.RawEmbeddings, diarizetypes.RawEmbedding{
		SegmentID: uuid.New(),
		Vector:    append([]float32(nil), embedding...),
		Timestamp: time.Now(),
	})
	if len(s.RawEmbeddings) > diarizetypes.MaxRawEmbeddings {
		s.RawEmbeddings = s.RawEmbeddings[len(s.RawEmbeddings)-diarizetypes.MaxRawEmbeddings:]
	}

	s.Duration += speechDuration
	s.UpdateCount++
	s.UpdatedAt = time.Now()
}

// observeLocked accumulates duration only, without touching the embedding.
func (t *Tracker) observeLocked(s *diarizetypes.Speaker, speechDuration float64) {
	s.Duration += speechDuration
	s.UpdatedAt = time.Now()
}

// Merge combines other into s: raw embeddings are concatenated and capped
// to the 50 most recent, the mean embedding is recomputed, and durations
// are summed.
func (t *Tracker) Merge(id, otherID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("tracker: unknown speaker %q", id)
	}
	other, ok := t.byID[otherID]
	if !ok {
		return fmt.Errorf("tracker: unknown speaker %q", otherID)
	}

	combined := append(append([]diarizetypes.RawEmbedding(nil), s.RawEmbeddings...), other.RawEmbeddings...)
	sort.Slice(combined, func(i, j int) bool { return combined[i].Timestamp.Before(combined[j].Timestamp) })
	if len(combined) > diarizetypes.MaxRawEmbeddings {
		combined = combined[len(combined)-diarizetypes.MaxRawEmbeddings:]
	}
	s.RawEmbeddings = combined

	mean := make([]float32, diarizetypes.EmbeddingDim)
	for _, re := range combined {
		for i, v := range re.Vector {
			mean[i] += v
		}
	}
	if len(combined) > 0 {
		for i := range mean {
			mean[i] /= float32(len(combined))
		}
	}
	s.CurrentEmbedding = mean
	s.Duration += other.Duration
	s.UpdatedAt = time.Now()

	delete(t.byID, otherID)
	return nil
}

// Get returns a copy of the speaker with the given id, if present.
func (t *Tracker) Get(id string) (diarizetypes.Speaker, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byID[id]
	if !ok {
		return diarizetypes.Speaker{}, false
	}
	return *s, true
}

// All returns a snapshot of every registered speaker.
func (t *Tracker) All() []diarizetypes.Speaker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]diarizetypes.Speaker, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, *s)
	}
	return out
}

// BuildSegments scans a segmentation chunk's per-slot activity for each
// local slot's runs of above-threshold activity, using an overlap-adaptive
// threshold. The binary activity matrix gates whether a slot has enough
// total activity to bother scanning at all; the continuous per-slot
// probability (softmax marginal
// over the powerset classes containing that slot) drives the per-frame
// threshold comparison, since a threshold applied to an already-binarized
// 0/1 value could never distinguish 0.30 from 0.15. slotSpeakerIDs maps
// local slot index to the speaker id the tracker assigned for that slot's
// embedding.
func BuildSegments(activity, probability [][segmentation.NumSlots]float32, window segmentation.Window, slotSpeakerIDs [segmentation.NumSlots]string, minSpeechDuration float64) []diarizetypes.TimedSpeakerSegment {
	var segments []diarizetypes.TimedSpeakerSegment

	for slot := 0; slot < segmentation.NumSlots; slot++ {
		if slotSpeakerIDs[slot] == "" {
			continue
		}
		totalActivity := 0
		for _, frame := range activity {
			if frame[slot] != 0 {
				totalActivity++
			}
		}
		if totalActivity < MinActivityFrames {
			continue
		}

		inRun := false
		runStart := 0
		for f, frame := range probability {
			threshold := float32(OverlapHighThreshold)
			for other := 0; other < segmentation.NumSlots; other++ {
				if other != slot && frame[other] > OverlapHighThreshold {
					threshold = OverlapLowThreshold
					break
				}
			}

			active := frame[slot] > threshold
			switch {
			case active && !inRun:
				inRun = true
				runStart = f
			case !active && inRun:
				inRun = false
				segments = appendSegment(segments, window, slotSpeakerIDs[slot], runStart, f, minSpeechDuration)
			}
		}
		if inRun {
			segments = appendSegment(segments, window, slotSpeakerIDs[slot], runStart, len(probability), minSpeechDuration)
		}
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].StartS < segments[j].StartS })
	return segments
}

func appendSegment(segments []diarizetypes.TimedSpeakerSegment, window segmentation.Window, speakerID string, startFrame, endFrame int, minSpeechDuration float64) []diarizetypes.TimedSpeakerSegment {
	start := window.StartS + float64(startFrame)*segmentation.FrameStepSeconds
	end := window.StartS + float64(endFrame)*segmentation.FrameStepSeconds + window.Duration
	if end-start < minSpeechDuration {
		return segments
	}
	return append(segments, diarizetypes.TimedSpeakerSegment{
		SpeakerID: speakerID,
		StartS:    start,
		EndS:      end,
		Quality:   1.0,
	})
}
