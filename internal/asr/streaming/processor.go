package streaming

import (
	"fmt"

	"voxstream/internal/asr/tdt"
	"voxstream/internal/asr/vocab"
	"voxstream/internal/inference"
	"voxstream/internal/tensor"
)

// Result is the outcome of processing one audio buffer end to end: decoded
// text, per-token timings, and the merged global-timeline tokens. The
// decoder state is not part of it; Process updates the caller's State in
// place.
type Result struct {
	Text    string
	Timings []vocab.TokenTiming
	Tokens  []Token
}

// ChunkProcessor ties the mel, encoder and TDT decoder models together into
// the full chunked pipeline: slide overlapping windows across the audio,
// run mel→encoder→decoder per window with decoder state borrowed across
// windows, and reconcile tokens at each window boundary. Grounded on
// TranscribeWithSegments's mel→encoder wiring in ai/gigaam_rnnt.go, split
// here into the windowed form the streaming contract requires.
type ChunkProcessor struct {
	mel        inference.Model
	encoder    inference.Model
	decoder    *tdt.Decoder
	vocabulary *vocab.Vocabulary

	// OverlapSeconds bounds how far back MergeTokens looks for a
	// duplicate join; NewChunkProcessor sets it to RightContextSeconds.
	OverlapSeconds float64
}

// NewChunkProcessor builds a processor over the given mel/encoder models and
// TDT decoder.
func NewChunkProcessor(mel, encoder inference.Model, decoder *tdt.Decoder, vocabulary *vocab.Vocabulary) *ChunkProcessor {
	return &ChunkProcessor{
		mel:            mel,
		encoder:        encoder,
		decoder:        decoder,
		vocabulary:     vocabulary,
		OverlapSeconds: RightContextSeconds,
	}
}

// Process runs the full windowed chain over one contiguous audio buffer,
// carrying state across windows, and returns the reconciled transcription.
func (p *ChunkProcessor) Process(samples []float32, state *tdt.State) (Result, error) {
	windows := ComputeWindows(len(samples))

	var accumulated []Token
	for _, w := range windows {
		tokens, err := p.processWindow(samples[w.StartSample:w.EndSample], w, state)
		if err != nil {
			return Result{}, fmt.Errorf("window at sample %d: %w", w.CenterStart, err)
		}
		accumulated = MergeTokens(accumulated, tokens, p.OverlapSeconds)
	}

	ids := make([]int, len(accumulated))
	frames := make([]int, len(accumulated))
	for i, tok := range accumulated {
		ids[i] = tok.ID
		frames[i] = int(tok.TimeSeconds/vocab.FrameSeconds + 0.5)
	}
	text, timings := vocab.PostProcess(p.vocabulary, ids, frames)

	return Result{Text: text, Timings: timings, Tokens: accumulated}, nil
}

// processWindow runs mel→encoder over one window, slices off
// start_frame_offset encoder frames, decodes the remainder, and converts
// the resulting emissions to global-timeline tokens.
func (p *ChunkProcessor) processWindow(raw []float32, w WindowSpec, state *tdt.State) ([]Token, error) {
	actualLength := len(raw)
	padded := PadToWindow(raw)

	audioSignal, err := tensor.Alloc([]int{1, len(padded)}, tensor.F32)
	if err != nil {
		return nil, err
	}
	copy(audioSignal.Float32(), padded)

	audioLength, err := tensor.Alloc([]int{1}, tensor.I32)
	if err != nil {
		return nil, err
	}
	audioLength.Int32()[0] = int32(actualLength)

	melOut, err := p.mel.Predict(inference.FeatureBundle{
		"audio_signal": audioSignal,
		"audio_length": audioLength,
	})
	if err != nil {
		return nil, fmt.Errorf("mel model: %w", err)
	}

	encOut, err := p.encoder.Predict(inference.FeatureBundle{
		"audio_signal": melOut["melspectrogram"],
		"length":       melOut["melspectrogram_length"],
	})
	if err != nil {
		return nil, fmt.Errorf("encoder model: %w", err)
	}

	encoderTensor := encOut["encoder_output"]
	effectiveLen := int(encOut["encoder_output_length"].Int32()[0])

	offset := w.StartFrameOffset
	if offset > effectiveLen {
		offset = effectiveLen
	}

	hiddenSize := encoderTensor.Shape()[2]
	frameStride := encoderTensor.Strides()[1]
	slicedLen := encoderTensor.Shape()[1] - offset
	sliced, err := tensor.View(encoderTensor, []int{1, slicedLen, hiddenSize}, offset*frameStride)
	if err != nil {
		return nil, err
	}

	emissions, err := p.decoder.DecodeChunk(sliced, effectiveLen-offset, state)
	if err != nil {
		return nil, err
	}

	windowStartSeconds := float64(w.StartSample) / SampleRate
	base := int(windowStartSeconds*FrameRateHz+0.5) + offset

	tokens := make([]Token, len(emissions))
	for i, e := range emissions {
		globalFrame := base + e.FrameIndex
		tokens[i] = Token{ID: e.TokenID, TimeSeconds: float64(globalFrame) * vocab.FrameSeconds}
	}
	return tokens, nil
}
