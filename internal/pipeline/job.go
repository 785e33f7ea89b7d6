package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// AudioJob is one accepted recording queued for analysis. The coordinator
// exclusively owns the job for its lifetime and releases the local source
// file when the run completes, successfully or not.
type AudioJob struct {
	ID           uuid.UUID
	SourcePath   string
	OriginalName string
	CreatedAt    time.Time
}

// NewJob creates a job for a locally staged recording.
func NewJob(sourcePath, originalName string) AudioJob {
	return AudioJob{
		ID:           uuid.New(),
		SourcePath:   sourcePath,
		OriginalName: originalName,
		CreatedAt:    time.Now(),
	}
}
