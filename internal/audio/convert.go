package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// soxAvailable caches whether sox is in PATH (checked once at startup).
var soxAvailable *bool

// CheckSox checks if sox is available in PATH. Call once at startup.
func CheckSox() bool {
	if soxAvailable != nil {
		return *soxAvailable
	}
	_, err := exec.LookPath("sox")
	avail := err == nil
	soxAvailable = &avail
	return avail
}

// Prepare validates and decodes an input recording for a diarization session.
// WAV input is parsed as-is; MP3 and M4A are resampled to mono 16 kHz via
// sox first. Any other extension fails with ErrUnsupportedFormat before any
// engine session starts.
func Prepare(ctx context.Context, path string) (*PCM, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read wav: %w", err)
		}
		return ParseWAV(data)
	case ".mp3", ".m4a":
		return convertToPCM(ctx, path)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
}

// convertToPCM shells out to sox to resample a compressed input to mono
// 16 kHz 16-bit WAV, then parses the result.
func convertToPCM(ctx context.Context, inputPath string) (*PCM, error) {
	// Unique temp name: multiple jobs convert concurrently.
	out, err := os.CreateTemp("", "voiceaudit-convert-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, "sox",
		inputPath,
		"-r", strconv.Itoa(TargetSampleRate),
		"-c", "1",
		"-b", "16",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("sox convert %s: %w (%s)", filepath.Base(inputPath), err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read converted wav: %w", err)
	}
	return ParseWAV(data)
}

// SoxEncoder encodes raw PCM into MP3 clips via sox.
type SoxEncoder struct{}

// EncodeMP3 serializes raw 16-bit samples to an MP3 container.
func (SoxEncoder) EncodeMP3(ctx context.Context, pcm []byte, sampleRate, channels int) ([]byte, error) {
	raw, err := os.CreateTemp("", "voiceaudit-clip-*.raw")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	rawPath := raw.Name()
	defer os.Remove(rawPath)

	if _, err := raw.Write(pcm); err != nil {
		raw.Close()
		return nil, fmt.Errorf("write raw clip: %w", err)
	}
	if err := raw.Close(); err != nil {
		return nil, fmt.Errorf("close raw clip: %w", err)
	}

	mp3Path := strings.TrimSuffix(rawPath, ".raw") + ".mp3"
	defer os.Remove(mp3Path)

	cmd := exec.CommandContext(ctx, "sox",
		"-t", "raw",
		"-r", strconv.Itoa(sampleRate),
		"-e", "signed",
		"-b", "16",
		"-c", strconv.Itoa(channels),
		rawPath,
		mp3Path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("sox encode: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(mp3Path)
	if err != nil {
		return nil, fmt.Errorf("read encoded clip: %w", err)
	}
	return data, nil
}
