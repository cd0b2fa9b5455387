// Package vocab implements the token post-processor: vocabulary lookup,
// subword-prefix handling, confidence synthesis, and timing alignment.
// Grounded on loadGigaAMVocab and mergeRNNTTokensToWord in ai/gigaam.go /
// ai/gigaam_rnnt.go of the teacher repository (a line-indexed token file,
// ▁-prefixed subwords).
package vocab

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
)

// wordInitialMarker is the subword convention's leading special character:
// it marks a word-initial subword.
const wordInitialMarker = "▁"

// FrameSeconds is the nominal duration, in seconds, of one encoder frame
// at the fixed 12.5 Hz frame rate — also used as each token's nominal
// display duration.
const FrameSeconds = 0.08

// Vocabulary maps token ids to their surface string form.
type Vocabulary struct {
	tokens []string
}

// Load reads a vocabulary file: one token per line, id = line index
// (0-based), exactly the convention ai/gigaam.go's loadGigaAMVocab uses.
func Load(path string) (*Vocabulary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary %s: %w", path, err)
	}
	defer file.Close()

	var tokens []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			tokens = append(tokens, "")
			continue
		}
		tokens = append(tokens, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return &Vocabulary{tokens: tokens}, nil
}

// Size returns the number of tokens the vocabulary file declares, the
// vocab_size a decoder must be constructed with (the joint network's
// logits are vocab_size entries followed by one entry per duration bucket).
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// String returns the surface form of a token id, or "" if out of range.
func (v *Vocabulary) String(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return ""
	}
	return v.tokens[id]
}

// Decode turns a list of token ids into display text, per spec's round-trip
// law: decode([t]) == s.replace('▁', ' ').trim().
func (v *Vocabulary) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(v.String(id))
	}
	text := strings.ReplaceAll(b.String(), wordInitialMarker, " ")
	return strings.TrimSpace(text)
}

// TokenTiming is one decoded token with its display timing.
//
// Confidence is intentionally left at its zero value: the decoder's
// jointArgmax only returns the winning token and duration indices, not the
// softmax mass behind them, so there is no per-token score to carry here.
// Confidence below synthesizes the one score this pipeline actually has,
// an utterance-level estimate from duration and token density.
type TokenTiming struct {
	TokenID    int
	Token      string
	Start      float64
	End        float64
	Confidence float32
}

// PostProcess converts emitted token ids and their per-token encoder frame
// indices into display text and per-token timings.
func PostProcess(vocabulary *Vocabulary, ids []int, frames []int) (string, []TokenTiming) {
	if len(ids) == 0 {
		return "", nil
	}

	timings := make([]TokenTiming, len(ids))
	for i, id := range ids {
		start := float64(frames[i]) * FrameSeconds
		timings[i] = TokenTiming{
			TokenID: id,
			Token:   vocabulary.String(id),
			Start:   start,
			End:     start + FrameSeconds,
		}
	}

	text := vocabulary.Decode(ids)
	if text == "" {
		log.Printf("[vocab] decoded token sequence is whitespace-only (%d tokens)", len(ids))
	}
	return text, timings
}

// Confidence synthesizes an overall confidence score in [0.1, 1.0] from
// audio duration and token density. Empty results get 0.1.
func Confidence(tokenCount int, durationSeconds float64) float32 {
	if tokenCount == 0 {
		return 0.1
	}

	score := 0.3

	durationComponent := durationSeconds
	if durationComponent > 10 {
		durationComponent = 10
	}
	score += 0.4 * (durationComponent / 10)

	density := 0.0
	if durationSeconds > 0 {
		density = float64(tokenCount) / durationSeconds
	}
	if density > 3 {
		density = 3
	}
	score += 0.3 * (density / 3)

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.1 {
		score = 0.1
	}
	return float32(score)
}
