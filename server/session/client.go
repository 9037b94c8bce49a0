// Package session hosts the client sessions opened by citizen and official devices. Each
// session owns one alert lifecycle controller and one sync engine.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-civicsos/server/clock"
	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
	"github.com/mattermost/mattermost-plugin-civicsos/server/livesync"
	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
	"github.com/mattermost/mattermost-plugin-civicsos/server/metrics"
	"github.com/mattermost/mattermost-plugin-civicsos/server/notify"
	"github.com/mattermost/mattermost-plugin-civicsos/server/phrase"
	"github.com/mattermost/mattermost-plugin-civicsos/server/sos"
)

// Capabilities are the sensors a device reported when it opened the session.
type Capabilities struct {
	Motion bool `json:"motion"`
	Speech bool `json:"speech"`
}

// Ledger is what a session reads and writes.
type Ledger interface {
	sos.AlertWriter
	livesync.Fetcher
}

// Config wires a Client.
type Config struct {
	ID           string
	Role         livesync.Role
	Capabilities Capabilities

	// Reporter is the user's identity and initial location.
	Reporter ledger.Reporter
	Settings sos.Settings

	Countdown    time.Duration
	SyncInterval time.Duration

	Ledger     Ledger
	Dispatcher livesync.Dispatcher
	KV         ledger.KVStore
	Scheduler  livesync.JobScheduler
	Clock      clock.Clock
	Logger     logging.Logger
	Metrics    *metrics.Metrics
}

// State is the externally visible state of a client session.
type State struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Role         livesync.Role   `json:"role"`
	Capabilities Capabilities    `json:"capabilities"`
	Location     ledger.Location `json:"location"`
	Settings     sos.Settings    `json:"settings"`
	Alert        sos.Session     `json:"alert"`
	Sync         livesync.Status `json:"sync"`
}

// Client is one device's session.
type Client struct {
	id           string
	role         livesync.Role
	capabilities Capabilities
	dispatcher   livesync.Dispatcher
	log          logging.Logger

	mu       sync.RWMutex
	reporter ledger.Reporter

	controller *sos.Controller
	engine     *livesync.Engine

	stopOnce sync.Once
	stopErr  error
}

// New creates a client session. The sync engine does not poll until Start.
func New(cfg Config) (*Client, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}
	if cfg.Reporter.UserID == "" {
		return nil, fmt.Errorf("session user cannot be empty")
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", cfg.Role)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	c := &Client{
		id:           cfg.ID,
		role:         cfg.Role,
		capabilities: cfg.Capabilities,
		dispatcher:   cfg.Dispatcher,
		log:          cfg.Logger,
		reporter:     cfg.Reporter,
	}

	var recognizer phrase.Recognizer
	if cfg.Capabilities.Speech {
		recognizer = &websocketRecognizer{
			sessionID:  cfg.ID,
			userID:     cfg.Reporter.UserID,
			dispatcher: cfg.Dispatcher,
		}
	}

	c.controller = sos.NewController(sos.Config{
		Clock:           cfg.Clock,
		Recognizer:      recognizer,
		MotionAvailable: cfg.Capabilities.Motion,
		Settings:        cfg.Settings,
		Countdown:       cfg.Countdown,
		Writer:          cfg.Ledger,
		Reporter:        sos.ReporterFunc(c.Reporter),
		Listener:        &eventListener{sessionID: cfg.ID, userID: cfg.Reporter.UserID, dispatcher: cfg.Dispatcher},
		Logger:          cfg.Logger,
		Metrics:         cfg.Metrics,
	})

	c.engine = livesync.NewEngine(livesync.Config{
		SessionID:  cfg.ID,
		UserID:     cfg.Reporter.UserID,
		Role:       cfg.Role,
		Interval:   cfg.SyncInterval,
		Fetcher:    cfg.Ledger,
		Dispatcher: cfg.Dispatcher,
		State:      livesync.NewStateStore(cfg.KV, cfg.Reporter.UserID, cfg.Role),
		Scheduler:  cfg.Scheduler,
		Clock:      cfg.Clock,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})

	return c, nil
}

// Start begins polling the ledger.
func (c *Client) Start() error {
	if err := c.engine.Start(); err != nil {
		return fmt.Errorf("failed to start sync engine for session %s: %w", c.id, err)
	}
	c.log.Info("Client session started", "session_id", c.id, "user_id", c.UserID(), "role", string(c.role))
	return nil
}

// Stop closes the controller, which cancels its timers and any open recognition session,
// and stops the sync engine. Only the first call does anything.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() {
		c.controller.Close()
		if err := c.engine.Stop(); err != nil {
			c.stopErr = fmt.Errorf("failed to stop sync engine for session %s: %w", c.id, err)
		}
		c.log.Info("Client session stopped", "session_id", c.id, "user_id", c.UserID())
	})
	return c.stopErr
}

func (c *Client) GetID() string { return c.id }

func (c *Client) Role() livesync.Role { return c.role }

func (c *Client) Capabilities() Capabilities { return c.capabilities }

// UserID returns the session owner.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reporter.UserID
}

// Controller returns the session's alert lifecycle controller.
func (c *Client) Controller() *sos.Controller {
	return c.controller
}

// Engine returns the session's sync engine.
func (c *Client) Engine() *livesync.Engine {
	return c.engine
}

// Reporter returns the identity and last known location used for the next SOS alert.
func (c *Client) Reporter() ledger.Reporter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reporter
}

// UpdateLocation records the device's latest location.
func (c *Client) UpdateLocation(loc ledger.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reporter.Location = loc
}

// State returns a snapshot of the session, its alert lifecycle and its sync health.
func (c *Client) State() State {
	reporter := c.Reporter()
	return State{
		ID:           c.id,
		UserID:       reporter.UserID,
		Role:         c.role,
		Capabilities: c.capabilities,
		Location:     reporter.Location,
		Settings:     c.controller.Settings(),
		Alert:        c.controller.Session(),
		Sync:         c.engine.Status(),
	}
}

// websocketRecognizer drives the speech engine on the device. Transcripts and errors come
// back through the HTTP API.
type websocketRecognizer struct {
	sessionID  string
	userID     string
	dispatcher livesync.Dispatcher
}

func (r *websocketRecognizer) Start(opts phrase.Options) error {
	r.dispatcher.Dispatch(notify.Event{
		Kind:      notify.KindStartListening,
		UserID:    r.userID,
		SessionID: r.sessionID,
		Data:      opts,
	})
	return nil
}

func (r *websocketRecognizer) Stop() {
	r.dispatcher.Dispatch(notify.Event{
		Kind:      notify.KindStopListening,
		UserID:    r.userID,
		SessionID: r.sessionID,
	})
}

// activationFailedMessage is shown on the device when the alert could not be written.
const activationFailedMessage = "Your SOS alert could not be sent. Please try again or call emergency services."

// eventListener forwards lifecycle changes to the device.
type eventListener struct {
	sessionID  string
	userID     string
	dispatcher livesync.Dispatcher
}

func (l *eventListener) SessionChanged(session sos.Session) {
	l.dispatcher.Dispatch(notify.Event{
		Kind:      notify.KindSOSState,
		UserID:    l.userID,
		SessionID: l.sessionID,
		Data:      session,
	})
}

func (l *eventListener) Activated(session sos.Session, alert ledger.SOSAlert) {
	l.dispatcher.Dispatch(notify.Event{
		Kind:      notify.KindSOSActivated,
		UserID:    l.userID,
		SessionID: l.sessionID,
		Alert:     &alert,
		Data:      session,
	})
}

func (l *eventListener) ActivationFailed(session sos.Session, _ error) {
	l.dispatcher.Dispatch(notify.Event{
		Kind:      notify.KindSOSFailed,
		UserID:    l.userID,
		SessionID: l.sessionID,
		Message:   activationFailedMessage,
		Data:      session,
	})
}
