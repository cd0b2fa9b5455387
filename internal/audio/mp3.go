package audio

import (
	"fmt"
	"io"
	"os"

	shine "github.com/braheezy/shine-mp3/pkg/mp3"
	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3Mono16k decodes an MP3 file to mono float32 PCM at SampleRate,
// grounded on session/mp3_reader.go's pure-Go go-mp3 decode (stereo
// int16 interleaved), downmixed and linearly resampled here since the
// pipeline's models require a fixed 16kHz mono signal.
func DecodeMP3Mono16k(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mp3 %s: %w", path, err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return nil, fmt.Errorf("decode mp3 %s: %w", path, err)
	}

	pcm := make([]byte, decoder.Length())
	n, err := io.ReadFull(decoder, pcm)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read mp3 pcm: %w", err)
	}
	pcm = pcm[:n]

	stereoSamples := n / 4 // 16-bit stereo, 4 bytes per frame
	mono := make([]float32, stereoSamples)
	for i := 0; i < stereoSamples; i++ {
		left := int16(uint16(pcm[i*4]) | uint16(pcm[i*4+1])<<8)
		right := int16(uint16(pcm[i*4+2]) | uint16(pcm[i*4+3])<<8)
		mono[i] = (float32(left) + float32(right)) / 2 / 32768
	}

	return resampleLinear(mono, decoder.SampleRate(), SampleRate), nil
}

// resampleLinear does a simple linear-interpolation resample; good enough
// for feeding the fixed-rate ASR/diarization models, not intended as a
// high-fidelity resampler.
func resampleLinear(in []float32, fromHz, toHz int) []float32 {
	if fromHz == toHz || len(in) == 0 {
		return in
	}
	ratio := float64(fromHz) / float64(toHz)
	outLen := int(float64(len(in)) / ratio)
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))
		if idx+1 < len(in) {
			out[i] = in[idx]*(1-frac) + in[idx+1]*frac
		} else {
			out[i] = in[idx]
		}
	}
	return out
}

// blockSize is the fixed number of mono samples shine-mp3 encodes per MP3
// Layer III frame (spec-agnostic codec constant, per
// session/mp3_writer_shine.go).
const blockSize = 1152

// SegmentWriter encodes mono float32 PCM segments to MP3 via shine-mp3 (pure
// Go, no FFmpeg), grounded on session/mp3_writer_shine.go's ShineMP3Writer.
// Used to export one audio file per diarized speaker segment.
type SegmentWriter struct {
	encoder *shine.Encoder
	file    *os.File
	buffer  []int16
}

// NewSegmentWriter creates path and prepares a mono encoder at sampleRate.
func NewSegmentWriter(path string, sampleRate int) (*SegmentWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &SegmentWriter{
		encoder: shine.NewEncoder(sampleRate, 1),
		file:    file,
		buffer:  make([]int16, 0, blockSize*4),
	}, nil
}

// Write appends samples (clamped to [-1,1]), flushing full blocks to disk.
func (w *SegmentWriter) Write(samples []float32) error {
	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		w.buffer = append(w.buffer, int16(s*32767))
	}
	if len(w.buffer) >= blockSize {
		w.encoder.Write(w.file, w.buffer)
		w.buffer = w.buffer[:0]
	}
	return nil
}

// Close pads and flushes the remaining buffer, then closes the file.
func (w *SegmentWriter) Close() error {
	if len(w.buffer) > 0 {
		for len(w.buffer)%blockSize != 0 {
			w.buffer = append(w.buffer, 0)
		}
		w.encoder.Write(w.file, w.buffer)
	}
	return w.file.Close()
}
