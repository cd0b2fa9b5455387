package streaming

const (
	SampleRate          = 16000
	CenterSeconds       = 11.0
	LeftContextSeconds  = 2.0
	RightContextSeconds = 2.0
	FrameRateHz         = 12.5

	centerSamples   = int(CenterSeconds * SampleRate)
	leftCtxSamples  = int(LeftContextSeconds * SampleRate)
	rightCtxSamples = int(RightContextSeconds * SampleRate)

	// MaxWindowSamples is the model's maximum capacity per window: center
	// + left context + right context (15s = 240,000 samples at 16kHz).
	MaxWindowSamples = centerSamples + leftCtxSamples + rightCtxSamples
)

// WindowSpec describes one sliding window over the full audio buffer.
type WindowSpec struct {
	CenterStart      int // sample offset this window is centered on
	StartSample      int // inclusive start, after clamping for left context
	EndSample        int // exclusive end, after clamping for right context
	ActualLength     int // EndSample - StartSample, the pre-zero-pad length
	StartFrameOffset int // encoder frames to skip as "already decoded" context; 0 for the first window
}

// ComputeWindows slides a center-sized window (with left/right context)
// across N samples.
func ComputeWindows(n int) []WindowSpec {
	var windows []WindowSpec
	for centerStart := 0; centerStart < n; centerStart += centerSamples {
		start := centerStart - leftCtxSamples
		if start < 0 {
			start = 0
		}
		end := centerStart + centerSamples + rightCtxSamples
		if end > n {
			end = n
		}

		offset := 0
		if len(windows) > 0 {
			offset = int(LeftContextSeconds*FrameRateHz + 0.5) // round
		}

		windows = append(windows, WindowSpec{
			CenterStart:      centerStart,
			StartSample:      start,
			EndSample:        end,
			ActualLength:     end - start,
			StartFrameOffset: offset,
		})
	}
	return windows
}

// PadToWindow zero-pads samples up to MaxWindowSamples, preserving the
// original (pre-pad) length as the caller's actual_length.
func PadToWindow(samples []float32) []float32 {
	if len(samples) >= MaxWindowSamples {
		return samples[:MaxWindowSamples]
	}
	padded := make([]float32, MaxWindowSamples)
	copy(padded, samples)
	return padded
}
