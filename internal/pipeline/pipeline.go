// Package pipeline orchestrates the speaker-segmented authenticity analysis:
// one diarization session per job, then clip assembly, detection submission,
// result resolution and persistence per speaker, with per-speaker fault
// isolation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/audio"
	"github.com/amberlink/voiceaudit/internal/detect"
	"github.com/amberlink/voiceaudit/internal/diarize"
	"github.com/amberlink/voiceaudit/internal/metrics"
	"github.com/amberlink/voiceaudit/internal/retry"
	"github.com/amberlink/voiceaudit/internal/storage"
)

// ErrSessionExhausted marks a job whose diarization session failed every
// attempt. No speaker records exist for such a job.
var ErrSessionExhausted = errors.New("diarization session retries exhausted")

// Resolver blocks until a submission's metrics are available. Nil when the
// deployment relies on the provider callback instead of polling.
type Resolver interface {
	Wait(ctx context.Context, token string) (*detect.Metrics, error)
}

// Coordinator runs the full pipeline for one job at a time. Multiple jobs
// may run concurrently through the same Coordinator; jobs share no mutable
// state.
type Coordinator struct {
	engine     diarize.Engine
	store      storage.ClipStore
	assembler  *Assembler
	submitter  detect.Submitter
	resolver   Resolver // nil in callback-only deployments
	aggregator *Aggregator
	executor   *retry.Executor
	log        zerolog.Logger
}

// NewCoordinator wires the pipeline stages together.
func NewCoordinator(
	engine diarize.Engine,
	store storage.ClipStore,
	assembler *Assembler,
	submitter detect.Submitter,
	resolver Resolver,
	aggregator *Aggregator,
	executor *retry.Executor,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		engine:     engine,
		store:      store,
		assembler:  assembler,
		submitter:  submitter,
		resolver:   resolver,
		aggregator: aggregator,
		executor:   executor,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Process runs one job to completion. The local source file is removed when
// the run finishes regardless of outcome. A session failure fails the whole
// job; per-speaker failures are logged and skipped so sibling speakers still
// complete.
func (c *Coordinator) Process(ctx context.Context, job AudioJob) error {
	log := c.log.With().
		Stringer("job_id", job.ID).
		Str("file", job.OriginalName).
		Logger()

	defer func() {
		if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", job.SourcePath).Msg("failed to remove source file")
		} else {
			log.Debug().Str("path", job.SourcePath).Msg("source file removed")
		}
	}()

	err := c.process(ctx, log, job)
	if err != nil {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("job failed")
		return err
	}
	metrics.JobsTotal.WithLabelValues("completed").Inc()
	log.Info().Msg("job complete")
	return nil
}

func (c *Coordinator) process(ctx context.Context, log zerolog.Logger, job AudioJob) error {
	// Validate and decode before anything touches the network. An
	// unsupported format fails the job immediately, no retries.
	rec, err := audio.Prepare(ctx, job.SourcePath)
	if err != nil {
		return err
	}

	originalURL, err := c.publishOriginal(ctx, job)
	if err != nil {
		return fmt.Errorf("publish original: %w", err)
	}

	// The whole session, start to terminal state, is one retryable unit.
	// A session that captured nothing is a failed attempt too.
	var result *diarize.Result
	err = c.executor.Do(ctx, "diarize-session", func(ctx context.Context) error {
		session := diarize.NewSession(c.engine, rec, log)
		r, err := session.Run(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionExhausted, err)
	}

	for _, speaker := range result.Speakers() {
		if speaker == diarize.UnknownSpeaker {
			log.Debug().Msg("skipping unidentified speaker bucket")
			continue
		}
		if len(result.Fragments[speaker]) == 0 {
			log.Debug().Str("speaker", speaker).Msg("skipping speaker with no fragments")
			continue
		}

		if err := c.processSpeaker(ctx, log, job, speaker, result, originalURL); err != nil {
			log.Error().Err(err).Str("speaker", speaker).Msg("speaker failed, continuing with remaining speakers")
		}
	}

	return nil
}

// processSpeaker runs assembly, submission, resolution and persistence for
// one speaker. Any error here is scoped to this speaker.
func (c *Coordinator) processSpeaker(ctx context.Context, log zerolog.Logger, job AudioJob, speaker string, result *diarize.Result, originalURL string) error {
	clipURL, err := c.assembler.Publish(ctx, speaker, result.Fragments[speaker], result.SampleRate, result.Channels)
	if err != nil {
		metrics.SpeakerFailuresTotal.WithLabelValues("assembly").Inc()
		return err
	}

	var token string
	err = c.executor.Do(ctx, "detect-submit", func(ctx context.Context) error {
		t, err := c.submitter.Submit(ctx, clipURL)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		metrics.SpeakerFailuresTotal.WithLabelValues("submission").Inc()
		return fmt.Errorf("submit speaker %s: %w", speaker, err)
	}

	// Commit the record before resolving: the transcript and clip are
	// durable immediately, and a provider callback racing this path finds
	// its row.
	if _, err := c.aggregator.CreateRecord(ctx, job, speaker, clipURL, token, result.Utterances[speaker], originalURL); err != nil {
		metrics.SpeakerFailuresTotal.WithLabelValues("persistence").Inc()
		return err
	}

	if c.resolver != nil {
		m, err := c.resolver.Wait(ctx, token)
		if err != nil {
			// Not fatal for the speaker: the record stands with null
			// authenticity fields, and a late callback can still fill them.
			log.Warn().Err(err).Str("speaker", speaker).Str("tracking_token", token).Msg("authenticity unresolved by polling")
			return nil
		}
		if err := c.aggregator.ApplyAuthenticity(ctx, token, *m); err != nil {
			metrics.SpeakerFailuresTotal.WithLabelValues("resolution").Inc()
			return err
		}
	}

	return nil
}

// publishOriginal uploads the source recording and returns its durable URL,
// recorded on every speaker record of the job.
func (c *Coordinator) publishOriginal(ctx context.Context, job AudioJob) (string, error) {
	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(job.OriginalName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("uploads/%s/%s", job.ID, filepath.Base(job.OriginalName))
	err = c.executor.Do(ctx, "original-publish", func(ctx context.Context) error {
		return c.store.Save(ctx, key, data, contentType)
	})
	if err != nil {
		return "", err
	}

	return c.store.URL(ctx, key)
}
