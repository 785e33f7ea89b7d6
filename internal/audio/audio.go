// Package audio handles input validation, decoding to PCM, time-window
// slicing, and clip encoding for the analysis pipeline.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat marks an input whose extension is not in the supported
// set. It is fatal for the job: no engine session is started and no retry is
// attempted.
var ErrUnsupportedFormat = errors.New("unsupported audio format (want .wav, .mp3 or .m4a)")

// TargetSampleRate is the rate the diarization engine expects. Compressed
// inputs are resampled to mono at this rate before a session starts.
const TargetSampleRate = 16000

// SupportedExt reports whether the file extension is one of the three
// accepted input formats.
func SupportedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3", ".m4a":
		return true
	}
	return false
}

// PCM holds decoded 16-bit signed little-endian samples. It is both the
// engine session input and the slicing source for speaker fragments.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the audio length in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate == 0 || p.Channels == 0 {
		return 0
	}
	return float64(len(p.Data)) / float64(p.SampleRate*p.Channels*2)
}

// Slice returns the raw sample bytes for the [start, end) window in seconds,
// clamped to the audio bounds and aligned to frame boundaries.
func (p *PCM) Slice(start, end float64) []byte {
	if end <= start || p.SampleRate == 0 {
		return nil
	}
	frameSize := p.Channels * 2
	lo := int(start*float64(p.SampleRate)) * frameSize
	hi := int(end*float64(p.SampleRate)) * frameSize
	if lo < 0 {
		lo = 0
	}
	if hi > len(p.Data) {
		hi = len(p.Data)
	}
	if lo >= hi {
		return nil
	}
	return p.Data[lo:hi]
}

// ParseWAV extracts the PCM stream from a RIFF/WAVE file. Only uncompressed
// 16-bit PCM is accepted; anything else is reported as unsupported.
func ParseWAV(data []byte) (*PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file: %w", ErrUnsupportedFormat)
	}

	var (
		sampleRate int
		channels   int
		bits       int
		pcm        []byte
	)

	// Walk the chunk list; we need "fmt " and "data".
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("truncated fmt chunk: %w", ErrUnsupportedFormat)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 { // PCM
				return nil, fmt.Errorf("wav format %d is not uncompressed PCM: %w", format, ErrUnsupportedFormat)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if sampleRate == 0 || pcm == nil {
		return nil, fmt.Errorf("missing fmt or data chunk: %w", ErrUnsupportedFormat)
	}
	if bits != 16 {
		return nil, fmt.Errorf("wav bit depth %d is not 16: %w", bits, ErrUnsupportedFormat)
	}
	if channels < 1 {
		channels = 1
	}

	return &PCM{Data: pcm, SampleRate: sampleRate, Channels: channels}, nil
}

// WriteWAV wraps PCM samples in a minimal RIFF/WAVE container.
func WriteWAV(p *PCM) []byte {
	dataLen := len(p.Data)
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(p.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(p.SampleRate*p.Channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(p.Channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44:], p.Data)

	return buf
}
