package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/retry"
	"github.com/amberlink/voiceaudit/internal/storage"
)

// ErrNoFragments marks a speaker bucket with nothing to assemble. Should not
// occur since buckets only exist after a first recognized event, but the
// coordinator skips such buckets rather than failing the speaker.
var ErrNoFragments = errors.New("no audio fragments to assemble")

// ClipEncoder serializes raw samples into a compressed audio container.
type ClipEncoder interface {
	EncodeMP3(ctx context.Context, pcm []byte, sampleRate, channels int) ([]byte, error)
}

// Assembler concatenates one speaker's time-ordered fragments into a single
// clip and publishes it durably.
type Assembler struct {
	store    storage.ClipStore
	encoder  ClipEncoder
	executor *retry.Executor
	log      zerolog.Logger
}

// NewAssembler creates a clip assembler.
func NewAssembler(store storage.ClipStore, encoder ClipEncoder, executor *retry.Executor, log zerolog.Logger) *Assembler {
	return &Assembler{
		store:    store,
		encoder:  encoder,
		executor: executor,
		log:      log.With().Str("component", "clip-assembler").Logger(),
	}
}

// Publish concatenates fragments in order, encodes them, and stores the clip
// under a collision-free name. The store call is retried as one unit; the
// store's overwrite semantics make a re-publish of the same content safe.
// Returns the clip's durable URL.
func (a *Assembler) Publish(ctx context.Context, speaker string, fragments [][]byte, sampleRate, channels int) (string, error) {
	if len(fragments) == 0 {
		return "", ErrNoFragments
	}

	total := 0
	for _, f := range fragments {
		total += len(f)
	}
	pcm := make([]byte, 0, total)
	for _, f := range fragments {
		pcm = append(pcm, f...)
	}

	clip, err := a.encoder.EncodeMP3(ctx, pcm, sampleRate, channels)
	if err != nil {
		return "", fmt.Errorf("encode clip for %s: %w", speaker, err)
	}

	// Fresh random identifier plus the speaker identity, so concurrent jobs
	// never collide on a key.
	key := fmt.Sprintf("clips/%s%s.mp3", uuid.NewString(), sanitizeKeyPart(speaker))

	err = a.executor.Do(ctx, "clip-publish", func(ctx context.Context) error {
		return a.store.Save(ctx, key, clip, "audio/mpeg")
	})
	if err != nil {
		return "", fmt.Errorf("publish clip for %s: %w", speaker, err)
	}

	url, err := a.store.URL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve clip URL for %s: %w", speaker, err)
	}

	a.log.Info().
		Str("speaker", speaker).
		Str("key", key).
		Int("fragments", len(fragments)).
		Int("clip_bytes", len(clip)).
		Msg("speaker clip published")
	return url, nil
}

func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
