package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/audio"
	"github.com/amberlink/voiceaudit/internal/pipeline"
)

const maxUploadBytes = 256 << 20

// JobLauncher starts background analysis jobs.
type JobLauncher interface {
	Launch(job pipeline.AudioJob)
}

// AnalyzeHandler accepts recording uploads and hands each one to the
// pipeline as its own job.
type AnalyzeHandler struct {
	launcher   JobLauncher
	stagingDir string
	log        zerolog.Logger
}

func NewAnalyzeHandler(launcher JobLauncher, stagingDir string, log zerolog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		launcher:   launcher,
		stagingDir: stagingDir,
		log:        log.With().Str("handler", "analyze").Logger(),
	}
}

// Routes registers the analyze endpoint.
func (h *AnalyzeHandler) Routes(r chi.Router) {
	r.Post("/analyze", h.Analyze)
}

// Analyze handles POST /api/v1/analyze. Accepts one or more recordings under
// the "files" multipart field, stages them locally and responds 202 before
// any analysis work happens.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		WriteError(w, http.StatusBadRequest, "no files uploaded: expected multipart field \"files\"")
		return
	}

	var accepted []string
	var rejected []ErrorResponse
	for _, header := range uploads {
		name := sanitizeFilename(header.Filename)
		if !audio.SupportedExt(name) {
			rejected = append(rejected, ErrorResponse{
				Error:  "unsupported format",
				Detail: name,
			})
			continue
		}

		path, err := h.stage(header, name)
		if err != nil {
			h.log.Error().Err(err).Str("file", name).Msg("failed to stage upload")
			rejected = append(rejected, ErrorResponse{Error: "staging failed", Detail: name})
			continue
		}

		job := pipeline.NewJob(path, name)
		h.launcher.Launch(job)
		accepted = append(accepted, name)
		h.log.Info().Stringer("job_id", job.ID).Str("file", name).Msg("upload accepted")
	}

	if len(accepted) == 0 {
		WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "no processable files",
			"rejected": rejected,
		})
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]any{
		"message":  "analysis started",
		"files":    accepted,
		"rejected": rejected,
	})
}

// stage copies one upload into the staging directory under a unique name.
// The pipeline owns the staged file and removes it when the job finishes.
func (h *AnalyzeHandler) stage(header *multipart.FileHeader, name string) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(h.stagingDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("write staging file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// sanitizeFilename strips any path component and replaces spaces so the name
// is safe as an object key and a database lookup value.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.ReplaceAll(name, " ", "_")
}
