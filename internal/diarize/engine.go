// Package diarize drives a speaker-diarization engine session over one
// recording and buckets the recognized speech by speaker identity.
package diarize

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/audio"
)

// TicksPerSecond is the engine's time unit: 100 ns ticks.
const TicksPerSecond = 10_000_000

// UnknownSpeaker is the sentinel identity the engine assigns to speech it
// could not attribute to a stable speaker. It is kept in transcripts but
// excluded from clip assembly, authenticity submission and persistence.
const UnknownSpeaker = "Unknown"

// EventType identifies a session event.
type EventType int

const (
	EventRecognized EventType = iota
	EventStopped
	EventCanceled
)

// Event is one recognition-stream event delivered while a session is live.
type Event struct {
	Type          EventType
	Speaker       string
	Text          string
	OffsetTicks   int64
	DurationTicks int64
	Reason        string // cancel detail, when Type is EventCanceled
}

// Engine starts diarization sessions. The returned channel delivers
// recognition events in engine order and is closed after the terminal
// stopped/canceled event.
type Engine interface {
	Start(ctx context.Context, rec *audio.PCM) (<-chan Event, error)
}

// HTTPEngine talks to a remote diarization service that accepts a WAV upload
// and streams newline-delimited JSON events back for the lifetime of the
// session.
type HTTPEngine struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPEngine creates an engine client. timeout bounds the whole session
// stream, not individual events.
func NewHTTPEngine(baseURL, token string, timeout time.Duration, log zerolog.Logger) *HTTPEngine {
	return &HTTPEngine{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "diarize-engine").Logger(),
	}
}

// wireEvent is the NDJSON event shape on the session stream.
type wireEvent struct {
	Type     string `json:"type"` // "recognized", "stopped", "canceled"
	Speaker  string `json:"speaker_id"`
	Text     string `json:"text"`
	Offset   int64  `json:"offset"`   // 100 ns ticks
	Duration int64  `json:"duration"` // 100 ns ticks
	Reason   string `json:"reason,omitempty"`
}

// Start uploads the recording and begins streaming session events.
func (e *HTTPEngine) Start(ctx context.Context, rec *audio.PCM) (<-chan Event, error) {
	body := audio.WriteWAV(rec)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/x-ndjson")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(b))
	}

	ch := make(chan Event, 16)
	go e.stream(resp.Body, ch)
	return ch, nil
}

// stream reads NDJSON events off the response body until a terminal event or
// stream end, then closes the channel. A stream that ends without a terminal
// event is reported as canceled so the session counts the attempt as failed.
func (e *HTTPEngine) stream(body io.ReadCloser, ch chan<- Event) {
	defer close(ch)
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var we wireEvent
		if err := json.Unmarshal(line, &we); err != nil {
			e.log.Warn().Err(err).Msg("malformed engine event, skipping")
			continue
		}

		switch we.Type {
		case "recognized":
			speaker := we.Speaker
			if speaker == "" {
				speaker = UnknownSpeaker
			}
			ch <- Event{
				Type:          EventRecognized,
				Speaker:       speaker,
				Text:          we.Text,
				OffsetTicks:   we.Offset,
				DurationTicks: we.Duration,
			}
		case "stopped":
			ch <- Event{Type: EventStopped}
			return
		case "canceled":
			ch <- Event{Type: EventCanceled, Reason: we.Reason}
			return
		default:
			e.log.Debug().Str("type", we.Type).Msg("ignoring unknown engine event type")
		}
	}

	reason := "session stream ended without terminal event"
	if err := sc.Err(); err != nil {
		reason = err.Error()
	}
	ch <- Event{Type: EventCanceled, Reason: reason}
}
