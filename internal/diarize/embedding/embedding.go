// Package embedding implements the embedding extractor: clean-frame mask
// preparation followed by one 256-dim embedding per local speaker slot.
// Grounded on the embedding half of
// ai/diarization_sherpa.go's SherpaDiarizerConfig, wired directly against
// sherpa-onnx-go's SpeakerEmbeddingExtractor rather than the monolithic
// OfflineSpeakerDiarization pipeline, since this component needs to feed
// it one masked waveform per slot and read back a raw vector.
package embedding

import (
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"voxstream/internal/diarize/segmentation"
)

// Dim is the fixed embedding dimensionality.
const Dim = 256

// MinActivityThreshold is the default minimum number of active frames a
// slot needs before its embedding is computed at all.
const MinActivityThreshold = 10

// SampleRate is the fixed rate embeddings are extracted at — the
// segmentation model's own 16kHz chunking.
const SampleRate = 16000

// Extractor wraps a sherpa-onnx speaker embedding model.
type Extractor struct {
	model *sherpa.SpeakerEmbeddingExtractor
}

// Config mirrors sherpa.SpeakerEmbeddingExtractorConfig's fields, kept
// narrow to what this package needs to construct one.
type Config struct {
	ModelPath  string
	NumThreads int
	Provider   string
}

// NewExtractor loads the embedding model.
func NewExtractor(cfg Config) (*Extractor, error) {
	model := sherpa.NewSpeakerEmbeddingExtractor(&sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      cfg.ModelPath,
		NumThreads: cfg.NumThreads,
		Debug:      0,
		Provider:   cfg.Provider,
	})
	if model == nil {
		return nil, fmt.Errorf("embedding: failed to load model %s", cfg.ModelPath)
	}
	return &Extractor{model: model}, nil
}

func (e *Extractor) Close() {
	if e.model != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(e.model)
	}
}

// CleanMasks applies the "clean frame" rule to a segmentation activity
// matrix: a frame is kept only if at most one slot is active in it
// (sum < 2.0); overlapped-speech frames are zeroed
// for every slot.
func CleanMasks(activity [][segmentation.NumSlots]float32) [][segmentation.NumSlots]float32 {
	clean := make([][segmentation.NumSlots]float32, len(activity))
	for f, frame := range activity {
		var sum float32
		for _, v := range frame {
			sum += v
		}
		if sum >= 2.0 {
			continue // leave this frame's mask at zero for every slot
		}
		clean[f] = frame
	}
	return clean
}

// Compute produces one embedding per local speaker slot from a chunk's raw
// waveform and its clean per-slot masks, short-circuiting slots whose total
// activity is below minActivity.
func (e *Extractor) Compute(waveform []float32, masks [][segmentation.NumSlots]float32, minActivity int) ([][]float32, error) {
	embeddings := make([][]float32, segmentation.NumSlots)
	for slot := 0; slot < segmentation.NumSlots; slot++ {
		activeFrames := 0
		for _, frame := range masks {
			if frame[slot] != 0 {
				activeFrames++
			}
		}
		if activeFrames < minActivity {
			embeddings[slot] = make([]float32, Dim)
			continue
		}

		masked := maskWaveform(waveform, masks, slot)

		stream := e.model.CreateStream()
		stream.AcceptWaveform(SampleRate, masked)
		stream.InputFinished()
		vec := e.model.Compute(stream)
		sherpa.DeleteSpeakerEmbeddingExtractorStream(stream)

		out := make([]float32, Dim)
		copy(out, vec)
		embeddings[slot] = out
	}
	return embeddings, nil
}

// maskWaveform zeroes the samples of any frame this slot's mask marks
// inactive, by frame geometry (16.875ms step / 61.94ms width).
func maskWaveform(waveform []float32, masks [][segmentation.NumSlots]float32, slot int) []float32 {
	out := append([]float32(nil), waveform...)
	stepSamples := int(segmentation.FrameStepSeconds * SampleRate)
	widthSamples := int(segmentation.FrameWidthSeconds * SampleRate)
	for f, frame := range masks {
		if frame[slot] != 0 {
			continue
		}
		start := f * stepSamples
		end := start + widthSamples
		if start >= len(out) {
			break
		}
		if end > len(out) {
			end = len(out)
		}
		for i := start; i < end; i++ {
			out[i] = 0
		}
	}
	return out
}
