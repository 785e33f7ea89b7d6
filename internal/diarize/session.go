package diarize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/audio"
)

// ErrNoSignal marks a session that reached its terminal state with zero
// utterances captured. Callers treat it like any other transient session
// failure and retry the whole session.
var ErrNoSignal = errors.New("session produced no utterances")

// ErrSessionCanceled marks a session the engine terminated abnormally.
var ErrSessionCanceled = errors.New("session canceled by engine")

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateStopped
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Utterance is one recognized speech segment attributed to a speaker.
// Immutable once emitted; within one speaker's sequence utterances do not
// overlap, while overlap across speakers is normal simultaneous speech.
type Utterance struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Result holds one completed session's speaker buckets: time-ordered
// utterances and the matching raw audio fragments, keyed by speaker.
type Result struct {
	Utterances map[string][]Utterance
	Fragments  map[string][][]byte
	SampleRate int
	Channels   int
}

// Speakers returns the bucket keys in deterministic order.
func (r *Result) Speakers() []string {
	names := make([]string, 0, len(r.Utterances))
	for name := range r.Utterances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// segment pairs an utterance with its sliced audio so that a stabilizing
// sort keeps transcript and clip in step.
type segment struct {
	utt  Utterance
	frag []byte
}

// Session runs exactly one engine session over one recording. One Session
// value is good for one Run; the pipeline's retry policy constructs a fresh
// Session per attempt.
type Session struct {
	engine Engine
	rec    *audio.PCM
	log    zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewSession creates an idle session over the given recording.
func NewSession(engine Engine, rec *audio.PCM, log zerolog.Logger) *Session {
	return &Session{
		engine: engine,
		rec:    rec,
		state:  StateIdle,
		log:    log.With().Str("component", "diarize-session").Logger(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run starts the engine session and blocks until the terminal state, folding
// every recognized event into per-speaker buckets. A canceled session, a
// context cancellation, or a session with zero utterances all fail the Run.
// Utterances are stabilized into non-decreasing start order per speaker even
// if the engine delivered events slightly out of order.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	events, err := s.engine.Start(ctx, s.rec)
	if err != nil {
		return nil, fmt.Errorf("start engine session: %w", err)
	}
	s.setState(StateListening)

	buckets := make(map[string][]segment)
	count := 0

loop:
	for {
		select {
		case <-ctx.Done():
			s.setState(StateCanceled)
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				// Engine closed the stream without a terminal event.
				s.setState(StateCanceled)
				return nil, ErrSessionCanceled
			}
			switch ev.Type {
			case EventRecognized:
				s.recognize(buckets, ev)
				count++
			case EventStopped:
				s.setState(StateStopped)
				break loop
			case EventCanceled:
				s.setState(StateCanceled)
				if ev.Reason != "" {
					return nil, fmt.Errorf("%w: %s", ErrSessionCanceled, ev.Reason)
				}
				return nil, ErrSessionCanceled
			}
		}
	}

	if count == 0 {
		// Indistinguishable from a crashed session for our purposes; the
		// caller retries either way.
		return nil, ErrNoSignal
	}

	res := &Result{
		Utterances: make(map[string][]Utterance, len(buckets)),
		Fragments:  make(map[string][][]byte, len(buckets)),
		SampleRate: s.rec.SampleRate,
		Channels:   s.rec.Channels,
	}
	for speaker, segs := range buckets {
		sort.SliceStable(segs, func(i, j int) bool {
			return segs[i].utt.Start < segs[j].utt.Start
		})
		utts := make([]Utterance, len(segs))
		frags := make([][]byte, 0, len(segs))
		for i, sg := range segs {
			utts[i] = sg.utt
			if sg.frag != nil {
				frags = append(frags, sg.frag)
			}
		}
		res.Utterances[speaker] = utts
		res.Fragments[speaker] = frags
	}

	s.log.Info().
		Int("utterances", count).
		Int("speakers", len(buckets)).
		Msg("session complete")
	return res, nil
}

// recognize appends one recognized event to its speaker bucket, slicing the
// event's time window out of the recording.
func (s *Session) recognize(buckets map[string][]segment, ev Event) {
	start := float64(ev.OffsetTicks) / TicksPerSecond
	end := float64(ev.OffsetTicks+ev.DurationTicks) / TicksPerSecond

	utt := Utterance{
		Speaker: ev.Speaker,
		Text:    ev.Text,
		Start:   start,
		End:     end,
	}
	buckets[ev.Speaker] = append(buckets[ev.Speaker], segment{
		utt:  utt,
		frag: s.rec.Slice(start, end),
	})

	s.log.Debug().
		Str("speaker", ev.Speaker).
		Float64("start", start).
		Float64("end", end).
		Msg("utterance buffered")
}
