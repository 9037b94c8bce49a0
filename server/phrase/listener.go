// Package phrase runs time-boxed speech recognition sessions and matches transcripts
// against the user's secret phrase.
package phrase

import (
	"errors"
	"fmt"
	"time"

	"github.com/mattermost/mattermost-plugin-civicsos/server/clock"
)

// ListenWindow is the hard deadline of a listening session.
const ListenWindow = 7000 * time.Millisecond

// Recognition error kinds that end a session quietly.
const (
	ErrorNoSpeech = "no-speech"
	ErrorAborted  = "aborted"
)

var (
	// ErrInert is returned when no valid phrase is configured.
	ErrInert = errors.New("secret phrase is not configured")

	// ErrAlreadyListening is returned when a session is already open.
	ErrAlreadyListening = errors.New("listening session already active")
)

// Options configures the underlying recognition engine.
type Options struct {
	Continuous     bool `json:"continuous"`
	InterimResults bool `json:"interimResults"`
}

// Recognizer is the platform speech recognition engine. Results and errors are fed back
// through Listener.HandleTranscript and Listener.HandleError.
//
//go:generate mockgen -destination=mocks/mock_recognizer.go -package=mocks github.com/mattermost/mattermost-plugin-civicsos/server/phrase Recognizer
type Recognizer interface {
	Start(opts Options) error
	Stop()
}

// Outcome is how a listening session ended.
type Outcome int

const (
	Matched Outcome = iota
	TimedOut
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case TimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// Result describes the end of a session. It is reported exactly once per session;
// canceled sessions report nothing.
type Result struct {
	Outcome    Outcome
	Transcript string
	ErrorKind  string

	// Benign is set for failures that must not be surfaced to the user.
	Benign bool
}

// Runner executes a callback in the owner's execution context.
type Runner func(func())

// Listener owns at most one recognition session at a time. Calls must be serialized by the
// owner; timer callbacks are routed through the Runner for that purpose.
type Listener struct {
	clock      clock.Clock
	recognizer Recognizer
	run        Runner
	onResult   func(Result)

	phrase     string
	active     bool
	generation uint64
	deadline   time.Time
	timer      clock.Timer
}

// NewListener creates a listener. run may be nil, in which case timer callbacks run directly.
func NewListener(clk clock.Clock, recognizer Recognizer, run Runner, onResult func(Result)) *Listener {
	if run == nil {
		run = func(f func()) { f() }
	}
	return &Listener{
		clock:      clk,
		recognizer: recognizer,
		run:        run,
		onResult:   onResult,
	}
}

// SetPhrase replaces the configured phrase. An open session keeps matching the new phrase.
func (l *Listener) SetPhrase(phrase string) {
	l.phrase = phrase
}

// Armed reports whether a valid phrase is configured and a recognizer is present.
func (l *Listener) Armed() bool {
	return l.recognizer != nil && ValidPhrase(l.phrase)
}

// Active reports whether a session is open.
func (l *Listener) Active() bool {
	return l.active
}

// Deadline returns the deadline of the open session, or the zero time.
func (l *Listener) Deadline() time.Time {
	return l.deadline
}

// Start opens a session with continuous interim results bounded by ListenWindow.
func (l *Listener) Start() error {
	if l.active {
		return ErrAlreadyListening
	}
	if !l.Armed() {
		return ErrInert
	}

	if err := l.recognizer.Start(Options{Continuous: true, InterimResults: true}); err != nil {
		return fmt.Errorf("failed to start speech recognition: %w", err)
	}

	l.active = true
	l.generation++
	gen := l.generation
	l.deadline = l.clock.Now().Add(ListenWindow)
	l.timer = l.clock.AfterFunc(ListenWindow, func() {
		l.run(func() { l.expire(gen) })
	})
	return nil
}

// HandleTranscript consumes an interim or final transcript. Returns true if it matched.
func (l *Listener) HandleTranscript(transcript string) bool {
	if !l.active {
		return false
	}
	if !Matches(transcript, l.phrase) {
		return false
	}

	l.finish(Result{Outcome: Matched, Transcript: transcript})
	return true
}

// HandleError consumes a recognition error and ends the session.
func (l *Listener) HandleError(kind string) {
	if !l.active {
		return
	}

	l.finish(Result{
		Outcome:   Failed,
		ErrorKind: kind,
		Benign:    IsBenignError(kind),
	})
}

// Cancel ends the open session without reporting a result. Returns false if none was open.
func (l *Listener) Cancel() bool {
	if !l.active {
		return false
	}
	l.cleanup()
	return true
}

// IsBenignError reports whether a recognition error kind is expected and must stay silent.
func IsBenignError(kind string) bool {
	return kind == ErrorNoSpeech || kind == ErrorAborted
}

func (l *Listener) expire(gen uint64) {
	if !l.active || gen != l.generation {
		return
	}
	l.finish(Result{Outcome: TimedOut})
}

func (l *Listener) finish(result Result) {
	l.cleanup()
	if l.onResult != nil {
		l.onResult(result)
	}
}

func (l *Listener) cleanup() {
	l.active = false
	l.deadline = time.Time{}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.recognizer.Stop()
}
