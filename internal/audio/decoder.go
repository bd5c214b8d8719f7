// ABOUTME: Multi-codec audio chunk decoder
// ABOUTME: Supports PCM, MP3, and Opus inbound formats
package audio

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrameSamples is the largest possible Opus frame (120ms at 48kHz).
const maxOpusFrameSamples = 5760

// DecodeChunk decodes one inbound audio chunk into a playable buffer.
// The MIME type selects the codec; the service sends raw PCM by default
// ("audio/pcm;rate=24000"), while the TTS path may return MP3.
func DecodeChunk(data []byte, mimeType string) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio chunk")
	}

	codec, rate := parseMIME(mimeType)
	switch codec {
	case "pcm", "l16", "":
		return decodePCM(data, rate), nil
	case "mpeg", "mp3":
		return decodeMP3(data)
	case "opus":
		return decodeOpus(data, rate)
	default:
		return nil, fmt.Errorf("unsupported audio mime type: %s", mimeType)
	}
}

// parseMIME extracts the codec subtype and optional rate parameter from
// a mime like "audio/pcm;rate=24000".
func parseMIME(mimeType string) (codec string, rate int) {
	rate = PlaybackSampleRate

	parts := strings.Split(mimeType, ";")
	base := strings.TrimSpace(strings.ToLower(parts[0]))
	codec = strings.TrimPrefix(base, "audio/")
	if codec == base && base != "" {
		// Not an audio/* type at all; let the caller reject it.
		codec = base
	}

	for _, param := range parts[1:] {
		param = strings.TrimSpace(param)
		if v, ok := strings.CutPrefix(param, "rate="); ok {
			if r, err := strconv.Atoi(v); err == nil && r > 0 {
				rate = r
			}
		}
	}
	return codec, rate
}

// decodePCM wraps raw little-endian 16-bit mono samples.
func decodePCM(data []byte, rate int) *Buffer {
	return &Buffer{
		Samples:    SamplesFromBytes(data),
		SampleRate: rate,
		Channels:   Channels,
	}
}

// decodeMP3 decodes a complete MP3 stream and downmixes to mono.
// go-mp3 always produces 16-bit stereo at the source rate.
func decodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode failed: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read failed: %w", err)
	}

	stereo := SamplesFromBytes(pcm)
	mono := make([]int16, len(stereo)/2)
	for i := range mono {
		mono[i] = int16((int32(stereo[i*2]) + int32(stereo[i*2+1])) / 2)
	}

	return &Buffer{
		Samples:    mono,
		SampleRate: dec.SampleRate(),
		Channels:   Channels,
	}, nil
}

// decodeOpus decodes a single Opus packet.
func decodeOpus(data []byte, rate int) (*Buffer, error) {
	dec, err := opus.NewDecoder(rate, Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	pcm := make([]int16, maxOpusFrameSamples*Channels)
	n, err := dec.Decode(data, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	return &Buffer{
		Samples:    pcm[:n*Channels],
		SampleRate: rate,
		Channels:   Channels,
	}, nil
}
