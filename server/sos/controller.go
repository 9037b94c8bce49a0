// Package sos implements the alert lifecycle of one device: gestures, the secret phrase and
// the manual hold feed a state machine that ends in an SOS alert written to the ledger.
package sos

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattermost/mattermost-plugin-civicsos/server/clock"
	"github.com/mattermost/mattermost-plugin-civicsos/server/gesture"
	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
	"github.com/mattermost/mattermost-plugin-civicsos/server/metrics"
	"github.com/mattermost/mattermost-plugin-civicsos/server/phrase"
)

// DefaultCountdown is the cancel window between confirmation and activation.
const DefaultCountdown = 5 * time.Second

var (
	// ErrInvalidTransition is returned when an input is not accepted in the current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

//go:generate mockgen -destination=mocks/mock_alert_writer.go -package=mocks github.com/mattermost/mattermost-plugin-civicsos/server/sos AlertWriter

// AlertWriter persists an activated alert.
type AlertWriter interface {
	CreateSOSAlert(reporter ledger.Reporter, video string) (*ledger.SOSAlert, error)
}

// ReporterSource resolves the identity and last known location of the device's user at
// activation time.
type ReporterSource interface {
	Reporter() ledger.Reporter
}

// ReporterFunc adapts a function to ReporterSource.
type ReporterFunc func() ledger.Reporter

func (f ReporterFunc) Reporter() ledger.Reporter {
	return f()
}

// StateListener receives lifecycle changes. Calls are made outside the controller lock, in
// the order the changes happened.
type StateListener interface {
	SessionChanged(session Session)
	Activated(session Session, alert ledger.SOSAlert)
	ActivationFailed(session Session, err error)
}

// Config wires a Controller.
type Config struct {
	Clock clock.Clock

	// Recognizer is nil when the device cannot do speech recognition.
	Recognizer phrase.Recognizer

	// MotionAvailable is false when the device has no motion sensing.
	MotionAvailable bool

	Settings  Settings
	Countdown time.Duration

	Writer   AlertWriter
	Reporter ReporterSource
	Listener StateListener

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// Controller owns the AlertSession of one device. Every input and timer callback runs under
// its mutex, so the state machine never observes concurrent events.
type Controller struct {
	mu sync.Mutex

	clock     clock.Clock
	detector  *gesture.Detector
	listener  *phrase.Listener
	writer    AlertWriter
	reporter  ReporterSource
	observer  StateListener
	log       logging.Logger
	metrics   *metrics.Metrics
	countdown time.Duration
	motion    bool

	settings Settings
	session  Session

	countdownTimer clock.Timer
	countdownGen   uint64

	pending []func()
	closed  bool
}

// NewController creates a controller with a fresh Idle session.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	c := &Controller{
		clock:     cfg.Clock,
		writer:    cfg.Writer,
		reporter:  cfg.Reporter,
		observer:  cfg.Listener,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		countdown: cfg.Countdown,
		motion:    cfg.MotionAvailable,
		settings:  cfg.Settings,
	}
	c.detector = gesture.NewDetector(c.gestureConfig())
	c.listener = phrase.NewListener(cfg.Clock, cfg.Recognizer, func(f func()) { c.do(f) }, c.onPhraseResult)
	c.listener.SetPhrase(cfg.Settings.activePhrase())
	c.session = Session{ID: uuid.NewString(), State: StateIdle}
	return c
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshot()
}

// Settings returns the active settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.settings
}

// HandleSample feeds one acceleration sample. Samples are ignored while a confirmation or
// countdown is on screen.
func (c *Controller) HandleSample(sample gesture.Sample) error {
	return c.run(func() error {
		if c.session.State == StateConfirming || c.session.State == StateCountdown {
			return nil
		}

		armed := c.session.State == StateIdle && c.listener.Armed()
		event := c.detector.Process(sample, armed)
		if event == gesture.None {
			return nil
		}
		c.metrics.ObserveGesture(event.String())

		switch event {
		case gesture.TripleShake:
			if c.session.State == StateListening {
				c.listener.Cancel()
			}
			c.enterConfirming(TriggerShake)
		case gesture.SingleShake:
			c.startListening()
		}
		return nil
	})
}

// HandleTranscript feeds an interim or final transcript. It returns true if the transcript
// matched the secret phrase.
func (c *Controller) HandleTranscript(text string) (bool, error) {
	var matched bool
	err := c.run(func() error {
		if c.session.State != StateListening {
			return nil
		}
		matched = c.listener.HandleTranscript(text)
		return nil
	})
	return matched, err
}

// HandleRecognitionError feeds a recognition error kind. Any error ends the listening session.
func (c *Controller) HandleRecognitionError(kind string) error {
	return c.run(func() error {
		if c.session.State != StateListening {
			return nil
		}
		c.listener.HandleError(kind)
		return nil
	})
}

// Confirm accepts the on-screen confirmation and starts the countdown.
func (c *Controller) Confirm() error {
	return c.run(func() error {
		if c.session.State != StateConfirming {
			return c.rejected("confirm")
		}
		c.startCountdown(c.session.Trigger)
		return nil
	})
}

// HoldCompleted starts the countdown directly from Idle, skipping the confirmation.
func (c *Controller) HoldCompleted() error {
	return c.run(func() error {
		if c.session.State != StateIdle {
			return c.rejected("hold")
		}
		c.startCountdown(TriggerHold)
		return nil
	})
}

// Cancel aborts a listening session, a confirmation or a countdown. The session ends as
// Canceled and a fresh Idle session replaces it.
func (c *Controller) Cancel() error {
	return c.run(func() error {
		switch c.session.State {
		case StateListening, StateConfirming, StateCountdown:
		default:
			return c.rejected("cancel")
		}

		c.stopTimers()
		c.session.State = StateCanceled
		c.session.ListeningDeadline = time.Time{}
		c.session.CountdownDeadline = time.Time{}
		c.emitState()

		c.log.Debug("SOS session canceled", "session_id", c.session.ID)
		c.newSession()
		return nil
	})
}

// AttachVideo records the reference of a video captured for the pending alert. Without a
// pending alert there is nothing to attach to.
func (c *Controller) AttachVideo(ref string) error {
	return c.run(func() error {
		switch c.session.State {
		case StateListening, StateConfirming, StateCountdown:
		default:
			return c.rejected("attach video")
		}
		c.session.VideoRef = ref
		c.emitState()
		return nil
	})
}

// UpdateSettings swaps the user's settings. Disabling the phrase ends an open listening session.
func (c *Controller) UpdateSettings(settings Settings) error {
	return c.run(func() error {
		c.settings = settings
		c.detector.UpdateConfig(c.gestureConfig())
		c.listener.SetPhrase(settings.activePhrase())

		if c.session.State == StateListening && !c.listener.Armed() {
			c.listener.Cancel()
			c.toIdle()
		}
		c.emitState()
		return nil
	})
}

// Close cancels every timer and the recognition session. Later calls return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.stopTimers()
	c.closed = true
	c.pending = nil
}

func (c *Controller) gestureConfig() gesture.Config {
	return gesture.Config{
		Available:   c.motion,
		ShakeToSOS:  c.settings.ShakeToSOS,
		SingleShake: c.settings.SecretPhraseEnabled,
	}
}

func (c *Controller) startListening() {
	if err := c.listener.Start(); err != nil {
		c.log.Debug("Secret phrase listening unavailable", "session_id", c.session.ID, "error", err.Error())
		return
	}
	c.session.State = StateListening
	c.session.ListeningDeadline = c.listener.Deadline()
	c.emitState()
}

func (c *Controller) onPhraseResult(result phrase.Result) {
	c.metrics.ObservePhraseSession(result.Outcome.String())
	if c.session.State != StateListening {
		return
	}
	c.session.ListeningDeadline = time.Time{}

	switch result.Outcome {
	case phrase.Matched:
		c.enterConfirming(TriggerPhrase)
	case phrase.TimedOut:
		c.log.Debug("Secret phrase listening timed out", "session_id", c.session.ID)
		c.toIdle()
	case phrase.Failed:
		if result.Benign {
			c.log.Debug("Secret phrase listening ended", "session_id", c.session.ID, "error_kind", result.ErrorKind)
		} else {
			c.log.Warn("Speech recognition failed", "session_id", c.session.ID, "error_kind", result.ErrorKind)
		}
		c.toIdle()
	}
}

func (c *Controller) enterConfirming(trigger Trigger) {
	c.session.State = StateConfirming
	c.session.Trigger = trigger
	c.session.ListeningDeadline = time.Time{}
	c.emitState()
}

func (c *Controller) startCountdown(trigger Trigger) {
	c.session.State = StateCountdown
	c.session.Trigger = trigger
	c.session.CountdownDeadline = c.clock.Now().Add(c.countdown)

	c.countdownGen++
	gen := c.countdownGen
	c.countdownTimer = c.clock.AfterFunc(c.countdown, func() {
		c.do(func() { c.activate(gen) })
	})
	c.emitState()
}

// activate runs when the countdown expires. A stale generation means the countdown was
// canceled after the timer had already fired.
func (c *Controller) activate(gen uint64) {
	if c.session.State != StateCountdown || gen != c.countdownGen {
		return
	}
	c.countdownTimer = nil
	c.session.CountdownDeadline = time.Time{}

	var reporter ledger.Reporter
	if c.reporter != nil {
		reporter = c.reporter.Reporter()
	}

	alert, err := c.writer.CreateSOSAlert(reporter, c.session.VideoRef)
	if err != nil {
		c.log.Error("Failed to create SOS alert",
			"session_id", c.session.ID,
			"trigger", string(c.session.Trigger),
			"error", err.Error(),
		)
		c.metrics.ObserveActivationFailure()

		failed := c.snapshot()
		c.emit(func(l StateListener) { l.ActivationFailed(failed, err) })
		c.toIdle()
		return
	}

	c.session.State = StateActivated
	c.session.AlertID = alert.ID
	c.metrics.ObserveActivation(string(c.session.Trigger))
	c.log.Info("SOS alert activated",
		"session_id", c.session.ID,
		"alert_id", alert.ID,
		"trigger", string(c.session.Trigger),
	)

	activated := c.snapshot()
	created := *alert
	c.emit(func(l StateListener) { l.Activated(activated, created) })
	c.emitState()
	c.newSession()
}

// toIdle returns the current session to Idle.
func (c *Controller) toIdle() {
	c.session.State = StateIdle
	c.session.Trigger = ""
	c.session.VideoRef = ""
	c.session.ListeningDeadline = time.Time{}
	c.session.CountdownDeadline = time.Time{}
	c.emitState()
}

// newSession replaces a terminal session with a fresh Idle one.
func (c *Controller) newSession() {
	c.session = Session{ID: uuid.NewString(), State: StateIdle}
	c.emitState()
}

func (c *Controller) stopTimers() {
	if c.countdownTimer != nil {
		c.countdownTimer.Stop()
		c.countdownTimer = nil
	}
	c.countdownGen++
	c.listener.Cancel()
}

func (c *Controller) rejected(input string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, input, c.session.State)
}

func (c *Controller) snapshot() Session {
	s := c.session
	state := c.detector.State()
	s.ShakeCount = state.ShakeCount
	s.LastShakeAt = state.LastShakeAt
	s.LastSingleShakeAt = state.LastSingleShakeAt
	return s
}

func (c *Controller) emitState() {
	s := c.snapshot()
	c.emit(func(l StateListener) { l.SessionChanged(s) })
}

// emit queues a listener call for delivery once the lock is released.
func (c *Controller) emit(call func(StateListener)) {
	if c.observer == nil {
		return
	}
	observer := c.observer
	c.pending = append(c.pending, func() { call(observer) })
}

// run executes an entry point under the lock.
func (c *Controller) run(f func() error) error {
	var err error
	if !c.do(func() { err = f() }) {
		return ErrClosed
	}
	return err
}

// do serializes f with every other input, then delivers queued listener calls. A panic in f
// reverts the session to Idle.
func (c *Controller) do(f func()) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.guard(f)
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, call := range pending {
		c.deliver(call)
	}
	return true
}

func (c *Controller) guard(f func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Recovered from panic in SOS controller", "session_id", c.session.ID, "panic", fmt.Sprint(r))
			c.reset()
		}
	}()
	f()
}

// reset is the last resort after a panic: drop timers and go back to Idle.
func (c *Controller) reset() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Failed to reset SOS controller", "session_id", c.session.ID, "panic", fmt.Sprint(r))
		}
	}()
	c.stopTimers()
	c.toIdle()
}

func (c *Controller) deliver(call func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("SOS state listener panicked", "panic", fmt.Sprint(r))
		}
	}()
	call()
}
