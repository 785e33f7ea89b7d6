package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TranscriptSegment is one utterance as stored in the transcriptions jsonb
// column and as returned by the API.
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SpeakerRecordRow is the input for inserting a speaker record. Authenticity
// fields are not part of the insert: they start null and are filled exactly
// once by UpdateAnalysis, from whichever of the polling or callback paths
// resolves first.
type SpeakerRecordRow struct {
	SpeakerName     string
	FileURL         string // published clip URL
	FileUUID        string // authenticity provider tracking token, unique
	Transcriptions  []TranscriptSegment
	FileName        string
	FileID          uuid.UUID // audio job ID
	OriginalFileURL string
}

// SpeakerRecordAPI is the full speaker record representation for reads.
type SpeakerRecordAPI struct {
	ID              int64               `json:"id"`
	SpeakerName     string              `json:"speaker"`
	FileURL         string              `json:"url"`
	FileUUID        string              `json:"uuid"`
	Transcriptions  []TranscriptSegment `json:"transcriptions"`
	FileName        string              `json:"file_name"`
	FileID          uuid.UUID           `json:"file_id"`
	OriginalFileURL string              `json:"file_url"`
	AnalysisLabel   *string             `json:"analysis_label"`
	AnalysisScores  json.RawMessage     `json:"analysis_scores"`
	Consistency     *float64            `json:"consistency"`
	AggregatedScore *float64            `json:"aggregated_score"`
	CreatedAt       time.Time           `json:"created_at"`
}

// InsertSpeakerRecord inserts a new speaker record in a transaction and
// returns its id. On any failure the transaction is rolled back and the error
// surfaced to the per-speaker caller.
func (db *DB) InsertSpeakerRecord(ctx context.Context, row *SpeakerRecordRow) (int64, error) {
	transcripts, err := json.Marshal(row.Transcriptions)
	if err != nil {
		return 0, fmt.Errorf("marshal transcriptions: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO speaker_records (
			speaker_name, file_url, file_uuid,
			transcriptions, file_name, file_id, original_file_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		row.SpeakerName, row.FileURL, row.FileUUID,
		transcripts, row.FileName, row.FileID, row.OriginalFileURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert speaker record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	db.log.Debug().
		Int64("id", id).
		Str("speaker", row.SpeakerName).
		Str("file_uuid", row.FileUUID).
		Msg("speaker record inserted")
	return id, nil
}

// UpdateAnalysis fills the authenticity fields of the record whose tracking
// token matches. The update is an unconditional single-row overwrite, so the
// polling and callback resolution paths can both run it without coordination.
// Returns the number of rows updated; 0 means no record carries this token.
func (db *DB) UpdateAnalysis(ctx context.Context, fileUUID, label string, scores json.RawMessage, consistency, aggregatedScore float64) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE speaker_records SET
			analysis_label = $1,
			analysis_scores = $2,
			consistency = $3,
			aggregated_score = $4
		WHERE file_uuid = $5
	`, label, scores, consistency, aggregatedScore, fileUUID)
	if err != nil {
		return 0, fmt.Errorf("update analysis: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetRecordsByFileName returns all speaker records for one original file
// name, oldest first.
func (db *DB) GetRecordsByFileName(ctx context.Context, fileName string) ([]SpeakerRecordAPI, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, speaker_name, file_url, file_uuid, transcriptions,
		       file_name, file_id, original_file_url,
		       analysis_label, analysis_scores, consistency, aggregated_score,
		       created_at
		FROM speaker_records
		WHERE file_name = $1
		ORDER BY id
	`, fileName)
	if err != nil {
		return nil, fmt.Errorf("query speaker records: %w", err)
	}
	defer rows.Close()

	var records []SpeakerRecordAPI
	for rows.Next() {
		var rec SpeakerRecordAPI
		var transcripts []byte
		err := rows.Scan(
			&rec.ID, &rec.SpeakerName, &rec.FileURL, &rec.FileUUID, &transcripts,
			&rec.FileName, &rec.FileID, &rec.OriginalFileURL,
			&rec.AnalysisLabel, &rec.AnalysisScores, &rec.Consistency, &rec.AggregatedScore,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan speaker record: %w", err)
		}
		if err := json.Unmarshal(transcripts, &rec.Transcriptions); err != nil {
			return nil, fmt.Errorf("unmarshal transcriptions for record %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListFileNames returns the distinct original file names with records.
func (db *DB) ListFileNames(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT DISTINCT file_name FROM speaker_records ORDER BY file_name`)
	if err != nil {
		return nil, fmt.Errorf("query file names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan file name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
