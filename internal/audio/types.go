// ABOUTME: Audio type definitions
// ABOUTME: Defines wire sample formats and decoded buffers
package audio

import (
	"encoding/binary"
	"time"
)

// Sample rates on the wire. Capture is sent at 16kHz; playback audio
// always arrives at the 24kHz output rate.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	Channels           = 1
)

// CaptureChunkSamples is the fixed outbound chunk size in samples.
const CaptureChunkSamples = 4096

// Buffer represents decoded PCM audio ready for playback.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 || b.Channels == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate*b.Channels)
}

// DurationTime returns the buffer length as a time.Duration.
func (b *Buffer) DurationTime() time.Duration {
	return time.Duration(b.Duration() * float64(time.Second))
}

// Bytes returns the samples as little-endian 16-bit PCM.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// SamplesFromBytes converts little-endian 16-bit PCM bytes to samples.
// A trailing odd byte is ignored.
func SamplesFromBytes(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
