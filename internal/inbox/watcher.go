// Package inbox watches a drop directory and feeds new recordings into the
// analysis pipeline, as an alternative to the HTTP upload endpoint.
package inbox

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/audio"
	"github.com/amberlink/voiceaudit/internal/pipeline"
)

// JobLauncher starts background analysis jobs.
type JobLauncher interface {
	Launch(job pipeline.AudioJob)
}

// Watcher monitors an inbox directory for dropped audio files. Each settled
// file becomes one pipeline job; the pipeline removes the file when the job
// finishes.
type Watcher struct {
	launcher JobLauncher
	inboxDir string
	log      zerolog.Logger

	watcher *fsnotify.Watcher

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesAccepted atomic.Int64
	filesSkipped  atomic.Int64
}

func New(launcher JobLauncher, inboxDir string, log zerolog.Logger) *Watcher {
	return &Watcher{
		launcher:       launcher,
		inboxDir:       inboxDir,
		log:            log.With().Str("component", "inbox").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start begins watching the inbox directory. Files already present are
// picked up immediately so recordings dropped while the service was down are
// not lost.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.inboxDir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.inboxDir); err != nil {
		fsw.Close()
		return err
	}
	w.watcher = fsw

	w.log.Info().Str("inbox_dir", w.inboxDir).Msg("inbox watcher started")

	go w.watchLoop()
	go w.sweepExisting()

	return nil
}

// Stop closes the watcher. Pending debounce timers may still fire; their
// jobs run to completion under the pipeline's own lifecycle.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.log.Info().
		Int64("files_accepted", w.filesAccepted.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("inbox watcher stopped")
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// sweepExisting queues files that were already sitting in the inbox when the
// watcher started.
func (w *Watcher) sweepExisting() {
	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		w.log.Warn().Err(err).Msg("inbox sweep failed")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.scheduleProcess(filepath.Join(w.inboxDir, entry.Name()))
	}
}

// scheduleProcess debounces by 500ms so partially copied files settle before
// the job starts.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.process(path)
	})
}

func (w *Watcher) process(path string) {
	if !audio.SupportedExt(path) {
		w.filesSkipped.Add(1)
		w.log.Debug().Str("path", path).Msg("skipping non-audio file")
		return
	}
	if _, err := os.Stat(path); err != nil {
		// Removed between the event and the debounce firing.
		return
	}

	job := pipeline.NewJob(path, filepath.Base(path))
	w.launcher.Launch(job)
	w.filesAccepted.Add(1)
	w.log.Info().Stringer("job_id", job.ID).Str("path", path).Msg("inbox file accepted")
}
