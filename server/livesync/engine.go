// Package livesync keeps a client session's view of the ledger fresh by polling it on a
// fixed interval, and raises notifications for what changed between two polls.
//
// Polling is the delivery mechanism: the view is eventually consistent with a staleness
// bounded by the interval. Diffs compare alert ids as sets, never positions.
package livesync

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/pluginapi/cluster"

	"github.com/mattermost/mattermost-plugin-civicsos/server/clock"
	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
	"github.com/mattermost/mattermost-plugin-civicsos/server/metrics"
	"github.com/mattermost/mattermost-plugin-civicsos/server/notify"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = 2000 * time.Millisecond

var errStalePoll = errors.New("another session stored a newer poll")

// Role selects which diffs raise notifications.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleOfficial Role = "official"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleOfficial
}

// Fetcher reads the ledger.
type Fetcher interface {
	GetReports() ([]ledger.Report, error)
	GetSOSAlerts() ([]ledger.SOSAlert, error)
}

// Dispatcher receives the notifications raised by a poll.
type Dispatcher interface {
	Dispatch(event notify.Event) bool
}

// View is the session's local copy of the ledger.
type View struct {
	Reports   []ledger.Report   `json:"reports"`
	Alerts    []ledger.SOSAlert `json:"alerts"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

// Status summarizes the engine's health.
type Status struct {
	Running             bool      `json:"running"`
	LastPoll            time.Time `json:"lastPoll"`
	LastSuccess         time.Time `json:"lastSuccess"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
}

// Config wires an Engine.
type Config struct {
	SessionID string
	UserID    string
	Role      Role
	Interval  time.Duration

	Fetcher    Fetcher
	Dispatcher Dispatcher
	State      *StateStore
	Scheduler  JobScheduler
	Clock      clock.Clock
	Logger     logging.Logger
	Metrics    *metrics.Metrics
}

// Engine polls the ledger for one client session.
type Engine struct {
	sessionID string
	userID    string
	role      Role
	interval  time.Duration

	fetcher    Fetcher
	dispatcher Dispatcher
	state      *StateStore
	scheduler  JobScheduler
	clock      clock.Clock
	log        logging.Logger
	metrics    *metrics.Metrics

	jobMu sync.Mutex
	job   Job

	pollMu sync.Mutex

	viewMu sync.RWMutex
	view   View
}

// NewEngine creates an engine. It does not poll until Start.
func NewEngine(cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	return &Engine{
		sessionID:  cfg.SessionID,
		userID:     cfg.UserID,
		role:       cfg.Role,
		interval:   cfg.Interval,
		fetcher:    cfg.Fetcher,
		dispatcher: cfg.Dispatcher,
		state:      cfg.State,
		scheduler:  cfg.Scheduler,
		clock:      cfg.Clock,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Start schedules the recurring poll. The first poll runs immediately.
func (e *Engine) Start() error {
	e.jobMu.Lock()
	defer e.jobMu.Unlock()

	if e.job != nil {
		return fmt.Errorf("sync engine already running")
	}

	jobID := fmt.Sprintf("civicsos_sync_%s", e.sessionID)
	job, err := e.scheduler.Schedule(jobID, e.nextWaitInterval, e.Poll)
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}

	e.job = job
	e.log.Debug("Sync engine started", "session_id", e.sessionID, "role", string(e.role), "interval", e.interval.String())
	return nil
}

// Stop cancels the recurring poll. Persisted state is kept for the next session.
func (e *Engine) Stop() error {
	e.jobMu.Lock()
	defer e.jobMu.Unlock()

	if e.job == nil {
		return nil
	}

	err := e.job.Close()
	e.job = nil

	if err != nil {
		e.log.Error("Failed to close sync job", "session_id", e.sessionID, "error", err.Error())
		return fmt.Errorf("failed to close sync job: %w", err)
	}

	e.log.Debug("Sync engine stopped", "session_id", e.sessionID)
	return nil
}

// View returns the local view from the last successful poll.
func (e *Engine) View() View {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()

	return e.view
}

// Status reports scheduling and persisted poll health.
func (e *Engine) Status() Status {
	e.jobMu.Lock()
	running := e.job != nil
	e.jobMu.Unlock()

	status := Status{Running: running}
	record, err := e.state.Get()
	if err != nil {
		e.log.Warn("Failed to read sync state", "session_id", e.sessionID, "error", err.Error())
		return status
	}

	status.LastPoll = record.LastPoll
	status.LastSuccess = record.LastSuccess
	status.ConsecutiveFailures = record.ConsecutiveFailures
	status.LastError = record.LastError
	return status
}

// nextWaitInterval is called by the job scheduler to decide when the next poll runs.
func (e *Engine) nextWaitInterval(now time.Time, metadata cluster.JobMetadata) time.Duration {
	if metadata.LastFinished.IsZero() {
		return 0
	}

	sinceLastFinished := now.Sub(metadata.LastFinished)
	if sinceLastFinished < e.interval {
		return e.interval - sinceLastFinished
	}
	return 0
}

// Poll runs one cycle: fetch, diff against the previous snapshot, notify, replace the view.
// The first successful poll of a user and role only records a baseline. A poll that fetched
// before another session of the same user and role last succeeded leaves the stored state
// alone and notifies nothing.
func (e *Engine) Poll() {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()

	now := e.clock.Now()

	reports, err := e.fetcher.GetReports()
	if err != nil {
		e.handlePollError(now, fmt.Errorf("failed to fetch reports: %w", err))
		return
	}

	alerts, err := e.fetcher.GetSOSAlerts()
	if err != nil {
		e.handlePollError(now, fmt.Errorf("failed to fetch SOS alerts: %w", err))
		return
	}

	current := e.snapshotOf(reports, alerts)
	var previous *Snapshot
	_, err = e.state.Update(func(r *Record) error {
		if r.Snapshot != nil && r.LastSuccess.After(now) {
			return errStalePoll
		}
		previous = r.Snapshot
		r.Snapshot = &current
		r.LastPoll = now
		r.LastSuccess = now
		r.ConsecutiveFailures = 0
		r.LastError = ""
		return nil
	})

	stale := errors.Is(err, errStalePoll)
	if err != nil && !stale {
		e.handlePollError(now, err)
		return
	}

	notified := 0
	if previous != nil && !stale {
		notified = e.notifyChanges(*previous, reports, alerts)
	}

	e.viewMu.Lock()
	e.view = View{Reports: reports, Alerts: alerts, FetchedAt: now}
	e.viewMu.Unlock()

	e.metrics.ObservePoll("success")

	e.log.Debug("Sync poll completed",
		"session_id", e.sessionID,
		"reports", len(reports),
		"alerts", len(alerts),
		"baseline", previous == nil && !stale,
		"stale", stale,
		"notified", notified)
}

func (e *Engine) snapshotOf(reports []ledger.Report, alerts []ledger.SOSAlert) Snapshot {
	snapshot := Snapshot{
		AlertIDs:       make([]string, 0, len(alerts)),
		ReportStatuses: make(map[string]ledger.ReportStatus),
	}
	for _, a := range alerts {
		snapshot.AlertIDs = append(snapshot.AlertIDs, a.ID)
	}
	if e.role == RoleCitizen {
		for _, r := range reports {
			if r.ReporterID == e.userID {
				snapshot.ReportStatuses[r.ID] = r.Status
			}
		}
	}
	return snapshot
}

// notifyChanges raises notifications for what is new since previous. Returns how many
// events were dispatched.
func (e *Engine) notifyChanges(previous Snapshot, reports []ledger.Report, alerts []ledger.SOSAlert) int {
	count := 0

	switch e.role {
	case RoleOfficial:
		seen := make(map[string]bool, len(previous.AlertIDs))
		for _, id := range previous.AlertIDs {
			seen[id] = true
		}

		// Alerts are listed newest first; notify oldest first so toasts arrive in order.
		for i := len(alerts) - 1; i >= 0; i-- {
			alert := alerts[i]
			if seen[alert.ID] || alert.Status != ledger.AlertActive {
				continue
			}
			if e.dispatcher.Dispatch(notify.Event{
				Kind:      notify.KindNewSOSAlert,
				UserID:    e.userID,
				SessionID: e.sessionID,
				Alert:     &alert,
			}) {
				count++
			}
		}

	case RoleCitizen:
		for i := range reports {
			report := reports[i]
			if report.ReporterID != e.userID {
				continue
			}
			before, ok := previous.ReportStatuses[report.ID]
			if !ok || before == report.Status {
				continue
			}
			if e.dispatcher.Dispatch(notify.Event{
				Kind:           notify.KindReportStatusChanged,
				UserID:         e.userID,
				SessionID:      e.sessionID,
				Report:         &report,
				PreviousStatus: before,
			}) {
				count++
			}
		}
	}

	return count
}

// handlePollError records the failure and keeps the stale view. Polling continues.
func (e *Engine) handlePollError(now time.Time, err error) {
	errMsg := err.Error()
	e.metrics.ObservePoll("failure")

	record, updateErr := e.state.Update(func(r *Record) error {
		r.LastPoll = now
		r.ConsecutiveFailures++
		r.LastError = errMsg
		return nil
	})
	if updateErr != nil {
		e.log.Error("Failed to record sync failure", "session_id", e.sessionID, "error", updateErr.Error())
	}

	e.log.Error("Sync poll failed",
		"session_id", e.sessionID,
		"consecutive_failures", record.ConsecutiveFailures,
		"error", errMsg)
}
