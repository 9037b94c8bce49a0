// Package notify fans lifecycle and sync events out to websocket clients and the
// command-center channel.
package notify

import (
	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

// Kind names an event. It doubles as the websocket event name.
type Kind string

const (
	// KindNewSOSAlert asks an official's clients to raise the new-alert toast.
	KindNewSOSAlert Kind = "new_sos_alert"
	// KindSOSActivated tells the reporting device its alert was written.
	KindSOSActivated Kind = "sos_activated"
	// KindSOSFailed tells the reporting device that writing its alert failed.
	KindSOSFailed Kind = "sos_failed"
	// KindSOSState carries an AlertSession snapshot to the device.
	KindSOSState Kind = "sos_state"
	// KindReportStatusChanged tells a citizen one of their reports changed status.
	KindReportStatusChanged Kind = "report_status_changed"
	// KindStartListening asks the device to start its speech recognizer.
	KindStartListening Kind = "start_listening"
	// KindStopListening asks the device to stop its speech recognizer.
	KindStopListening Kind = "stop_listening"

	// KindSOSAlertCreated is raised once per alert written to the ledger.
	KindSOSAlertCreated Kind = "sos_alert_created"
	// KindReportCreated is raised once per report written to the ledger.
	KindReportCreated Kind = "report_created"
)

// Event is one notification. UserID is empty for events not addressed to a single user.
type Event struct {
	Kind      Kind
	UserID    string
	SessionID string

	Alert          *ledger.SOSAlert
	Report         *ledger.Report
	PreviousStatus ledger.ReportStatus

	// Message is a user-facing text, set for failures.
	Message string

	// Data is a kind-specific payload such as a session snapshot.
	Data any
}
