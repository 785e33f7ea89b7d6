package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/database"
)

// RecordSource is the read side of the speaker record store.
type RecordSource interface {
	GetRecordsByFileName(ctx context.Context, fileName string) ([]database.SpeakerRecordAPI, error)
	ListFileNames(ctx context.Context) ([]string, error)
}

// ResultsHandler serves analysis results per original file.
type ResultsHandler struct {
	store RecordSource
	log   zerolog.Logger
}

func NewResultsHandler(store RecordSource, log zerolog.Logger) *ResultsHandler {
	return &ResultsHandler{
		store: store,
		log:   log.With().Str("handler", "results").Logger(),
	}
}

// Routes registers the read endpoints.
func (h *ResultsHandler) Routes(r chi.Router) {
	r.Get("/results", h.Results)
	r.Get("/files", h.Files)
}

// SegmentResult is one utterance with its speaker's authenticity verdict.
type SegmentResult struct {
	Speaker         string          `json:"speaker"`
	Start           float64         `json:"start"`
	End             float64         `json:"end"`
	Text            string          `json:"text"`
	ClipURL         string          `json:"clip_url"`
	Label           *string         `json:"label"`
	Scores          json.RawMessage `json:"scores,omitempty"`
	Consistency     *float64        `json:"consistency"`
	AggregatedScore *float64        `json:"aggregated_score"`
}

// ResultsResponse is the full analysis view of one original recording.
type ResultsResponse struct {
	FileName        string          `json:"file_name"`
	OriginalFileURL string          `json:"original_file_url"`
	Segments        []SegmentResult `json:"segments"`
}

// Results handles GET /api/v1/results?file_name=…. Speaker records are
// flattened into a single timeline ordered by utterance start.
func (h *ResultsHandler) Results(w http.ResponseWriter, r *http.Request) {
	fileName, ok := QueryString(r, "file_name")
	if !ok {
		WriteError(w, http.StatusBadRequest, "missing required query parameter: file_name")
		return
	}

	records, err := h.store.GetRecordsByFileName(r.Context(), fileName)
	if err != nil {
		h.log.Error().Err(err).Str("file_name", fileName).Msg("results query failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(records) == 0 {
		WriteError(w, http.StatusNotFound, "no analysis for that file")
		return
	}

	resp := ResultsResponse{
		FileName:        fileName,
		OriginalFileURL: records[0].OriginalFileURL,
		Segments:        []SegmentResult{},
	}
	for _, rec := range records {
		for _, seg := range rec.Transcriptions {
			resp.Segments = append(resp.Segments, SegmentResult{
				Speaker:         rec.SpeakerName,
				Start:           seg.Start,
				End:             seg.End,
				Text:            seg.Text,
				ClipURL:         rec.FileURL,
				Label:           rec.AnalysisLabel,
				Scores:          rec.AnalysisScores,
				Consistency:     rec.Consistency,
				AggregatedScore: rec.AggregatedScore,
			})
		}
	}
	sort.SliceStable(resp.Segments, func(i, j int) bool {
		return resp.Segments[i].Start < resp.Segments[j].Start
	})

	WriteJSON(w, http.StatusOK, resp)
}

// Files handles GET /api/v1/files: the distinct original file names that
// have at least one speaker record.
func (h *ResultsHandler) Files(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListFileNames(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("file list query failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if names == nil {
		names = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string][]string{"files": names})
}
