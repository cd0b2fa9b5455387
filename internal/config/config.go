// Package config loads process-wide configuration from flags, grounded on
// the teacher's flag-based Config (internal/config/config.go): one Load()
// call at process start, no env/file layering.
package config

import (
	"flag"
)

// Config holds every knob the pipeline needs at process start: model
// paths, transport addresses, and the streaming/diarization window and
// threshold parameters left to the caller.
type Config struct {
	ModelsDir string
	Port      string

	MelModelPath          string
	EncoderModelPath      string
	PredictorModelPath    string
	JointModelPath        string
	SegmentationModelPath string
	EmbeddingModelPath    string
	VocabPath             string

	// Streaming window geometry, in seconds. The streaming package uses its
	// own fixed constants for the windows; main reads RightContextSeconds
	// only as the cross-window token-merge overlap.
	CenterSeconds       float64
	LeftContextSeconds  float64
	RightContextSeconds float64

	// Speaker tracker thresholds.
	SpeakerThreshold   float64
	EmbeddingThreshold float64
	MinSpeechDuration  float64

	ComputeUnit string // "cpu", "cpu+gpu", "cpu+accelerator", "any"
}

// Load parses flags into a Config, exactly the teacher's one-shot
// flag.Parse() discipline.
func Load() *Config {
	modelsDir := flag.String("models", "models", "Directory containing the pipeline's ONNX model files")
	port := flag.String("port", "8080", "Streaming HTTP/WS server port (also serves the control-plane websocket)")

	melModel := flag.String("mel-model", "", "Path to the mel-spectrogram ONNX model")
	encoderModel := flag.String("encoder-model", "", "Path to the encoder ONNX model")
	predictorModel := flag.String("predictor-model", "", "Path to the TDT predictor ONNX model")
	jointModel := flag.String("joint-model", "", "Path to the TDT joint network ONNX model")
	segmentationModel := flag.String("segmentation-model", "", "Path to the speaker segmentation ONNX model")
	embeddingModel := flag.String("embedding-model", "", "Path to the speaker embedding model")
	vocabPath := flag.String("vocab", "", "Path to the token vocabulary file")

	centerSeconds := flag.Float64("center-seconds", 11.0, "Streaming window center length in seconds (recorded only; the streaming package's window geometry is fixed)")
	leftContext := flag.Float64("left-context-seconds", 2.0, "Streaming window left context length in seconds (recorded only; the streaming package's window geometry is fixed)")
	rightContext := flag.Float64("right-context-seconds", 2.0, "Overlap in seconds used when merging tokens across windows (the window's right context itself is fixed)")

	speakerThreshold := flag.Float64("speaker-threshold", 0.5, "Cosine-distance threshold for matching an existing speaker")
	embeddingThreshold := flag.Float64("embedding-threshold", 0.3, "Cosine-distance threshold for updating a speaker's embedding via EMA")
	minSpeechDuration := flag.Float64("min-speech-duration", 0.5, "Minimum speech duration (seconds) to create or segment a speaker")

	computeUnit := flag.String("compute-unit", "any", "Inference compute-unit preference: cpu, cpu+gpu, cpu+accelerator, any")

	flag.Parse()

	return &Config{
		ModelsDir:             *modelsDir,
		Port:                  *port,
		MelModelPath:          *melModel,
		EncoderModelPath:      *encoderModel,
		PredictorModelPath:    *predictorModel,
		JointModelPath:        *jointModel,
		SegmentationModelPath: *segmentationModel,
		EmbeddingModelPath:    *embeddingModel,
		VocabPath:             *vocabPath,
		CenterSeconds:         *centerSeconds,
		LeftContextSeconds:    *leftContext,
		RightContextSeconds:   *rightContext,
		SpeakerThreshold:      *speakerThreshold,
		EmbeddingThreshold:    *embeddingThreshold,
		MinSpeechDuration:     *minSpeechDuration,
		ComputeUnit:           *computeUnit,
	}
}
