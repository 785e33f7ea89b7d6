package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/database"
	"github.com/amberlink/voiceaudit/internal/detect"
	"github.com/amberlink/voiceaudit/internal/diarize"
	"github.com/amberlink/voiceaudit/internal/metrics"
)

// RecordStore is the persistence contract the aggregator needs.
type RecordStore interface {
	InsertSpeakerRecord(ctx context.Context, row *database.SpeakerRecordRow) (int64, error)
	UpdateAnalysis(ctx context.Context, fileUUID, label string, scores json.RawMessage, consistency, aggregatedScore float64) (int64, error)
}

// Aggregator merges one speaker's transcript, clip location and tracking
// token into a persisted record, and applies authenticity updates as they
// arrive from either resolution path.
type Aggregator struct {
	store RecordStore
	log   zerolog.Logger
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store RecordStore, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		store: store,
		log:   log.With().Str("component", "aggregator").Logger(),
	}
}

// CreateRecord persists a new speaker record with null authenticity fields.
// The insert is transactional; on failure the error surfaces to the
// per-speaker caller, which logs and moves on to the next speaker.
func (g *Aggregator) CreateRecord(ctx context.Context, job AudioJob, speaker, clipURL, trackingToken string, utterances []diarize.Utterance, originalFileURL string) (int64, error) {
	segments := make([]database.TranscriptSegment, len(utterances))
	for i, u := range utterances {
		segments[i] = database.TranscriptSegment{Text: u.Text, Start: u.Start, End: u.End}
	}

	id, err := g.store.InsertSpeakerRecord(ctx, &database.SpeakerRecordRow{
		SpeakerName:     speaker,
		FileURL:         clipURL,
		FileUUID:        trackingToken,
		Transcriptions:  segments,
		FileName:        job.OriginalName,
		FileID:          job.ID,
		OriginalFileURL: originalFileURL,
	})
	if err != nil {
		return 0, fmt.Errorf("persist speaker %s: %w", speaker, err)
	}

	metrics.SpeakersPersistedTotal.Inc()
	g.log.Info().
		Int64("record_id", id).
		Str("speaker", speaker).
		Str("tracking_token", trackingToken).
		Msg("speaker record created")
	return id, nil
}

// ApplyAuthenticity fills the authenticity fields of the record matching the
// tracking token. Both the polling path and the provider callback land here;
// the update is an idempotent overwrite keyed on the token, so whichever path
// writes second changes nothing. An unknown token is a warning, not an
// error: the record may not be committed yet, or the token may be stale.
func (g *Aggregator) ApplyAuthenticity(ctx context.Context, trackingToken string, m detect.Metrics) error {
	scores := m.Score
	if scores == nil {
		scores = []float64{}
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}

	rows, err := g.store.UpdateAnalysis(ctx, trackingToken, m.Label, scoresJSON, m.Consistency, m.AggregatedScore)
	if err != nil {
		return fmt.Errorf("apply authenticity for %s: %w", trackingToken, err)
	}
	if rows == 0 {
		g.log.Warn().Str("tracking_token", trackingToken).Msg("authenticity result matches no record")
		return nil
	}

	g.log.Info().
		Str("tracking_token", trackingToken).
		Str("label", m.Label).
		Float64("aggregated_score", m.AggregatedScore).
		Msg("authenticity fields applied")
	return nil
}
