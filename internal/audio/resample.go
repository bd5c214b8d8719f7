// ABOUTME: Linear resampler for mono playback buffers
// ABOUTME: Converts decoded chunks to the output device sample rate
package audio

// Resample converts a mono buffer to the target sample rate using linear
// interpolation. The input buffer is returned unchanged when it already
// matches.
func Resample(buf *Buffer, targetRate int) *Buffer {
	if buf.SampleRate == targetRate || buf.SampleRate <= 0 || len(buf.Samples) == 0 {
		return buf
	}

	ratio := float64(buf.SampleRate) / float64(targetRate)
	outFrames := int(float64(len(buf.Samples)) / ratio)
	out := make([]int16, outFrames)

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(buf.Samples)-1 {
			out[i] = buf.Samples[len(buf.Samples)-1]
			continue
		}
		frac := pos - float64(idx)
		s1 := float64(buf.Samples[idx])
		s2 := float64(buf.Samples[idx+1])
		out[i] = int16(s1*(1.0-frac) + s2*frac)
	}

	return &Buffer{
		Samples:    out,
		SampleRate: targetRate,
		Channels:   buf.Channels,
	}
}
