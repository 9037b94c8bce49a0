package ledger

import (
	"fmt"
	"time"
)

// ReportStatus is the lifecycle status of a citizen report.
type ReportStatus string

const (
	StatusUnderReview ReportStatus = "Under Review"
	StatusResolved    ReportStatus = "Resolved"
	StatusEmergency   ReportStatus = "Emergency"
)

// Valid reports whether s is a known report status.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusUnderReview, StatusResolved, StatusEmergency:
		return true
	}
	return false
}

// AlertStatus is the status of an SOS alert. Resolved alerts are deleted, not marked.
type AlertStatus string

const (
	AlertActive       AlertStatus = "Active"
	AlertAcknowledged AlertStatus = "Acknowledged"
)

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	return s == AlertActive || s == AlertAcknowledged
}

// DataflowStatus is the pipeline stage of a dataflow item. It only moves forward.
type DataflowStatus string

const (
	DataflowReceived   DataflowStatus = "Received"
	DataflowValidating DataflowStatus = "Validating"
	DataflowForwarded  DataflowStatus = "Forwarded"
)

func (s DataflowStatus) rank() int {
	switch s {
	case DataflowReceived:
		return 1
	case DataflowValidating:
		return 2
	case DataflowForwarded:
		return 3
	}
	return 0
}

// Terminal reports whether no further transition can happen.
func (s DataflowStatus) Terminal() bool {
	return s == DataflowForwarded
}

// SystemActor is the author of automatic report log entries.
const SystemActor = "System"

// Coords is a latitude/longitude pair.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coords) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lng)
}

// Location is a place snapshot. Address may be empty when only coordinates are known.
type Location struct {
	Address  string `json:"address"`
	Coords   Coords `json:"coords"`
	District string `json:"district,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Reporter identifies the user behind a report or alert at the time of the call.
type Reporter struct {
	UserID         string   `json:"userId"`
	Name           string   `json:"name"`
	Phone          string   `json:"phone"`
	ProfilePicture string   `json:"profilePicture"`
	Location       Location `json:"location"`
}

// AlertUser is the reporter identity copied into an SOS alert.
type AlertUser struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	ProfilePicture string `json:"profilePicture"`
}

// SOSAlert is a persisted emergency alert. Everything except Status is immutable.
type SOSAlert struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userId"`
	User          AlertUser   `json:"user"`
	Timestamp     time.Time   `json:"timestamp"`
	Location      Location    `json:"location"`
	Status        AlertStatus `json:"status"`
	RecordedVideo string      `json:"recordedVideo,omitempty"`
}

// SOSAlertPatch changes an alert. Only the status can change.
type SOSAlertPatch struct {
	Status *AlertStatus `json:"status,omitempty"`
}

// UpdateEntry is one line of a report's status log.
type UpdateEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	By        string    `json:"by"`
}

// Assignment is the officer or department a report is assigned to.
type Assignment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Report is a detailed civic report. Updates is append-only.
type Report struct {
	ID          string        `json:"id"`
	ReporterID  string        `json:"reporterId,omitempty"`
	Title       string        `json:"title"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Status      ReportStatus  `json:"status"`
	Priority    string        `json:"priority"`
	Date        time.Time     `json:"date"`
	Location    string        `json:"location"`
	Coords      Coords        `json:"coords"`
	Photo       string        `json:"photo,omitempty"`
	Video       string        `json:"video,omitempty"`
	Updates     []UpdateEntry `json:"updates"`
	AssignedTo  *Assignment   `json:"assignedTo,omitempty"`
}

// ReportData is the citizen-supplied part of a new report.
type ReportData struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Coords      Coords `json:"coords"`
	Photo       string `json:"photo,omitempty"`
	Video       string `json:"video,omitempty"`
}

// ReportPatch changes a report. Nil fields are left unchanged.
type ReportPatch struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Priority    *string       `json:"priority,omitempty"`
	Status      *ReportStatus `json:"status,omitempty"`
	AssignedTo  *Assignment   `json:"assignedTo,omitempty"`
}

// DataflowUser identifies the submitter of a dataflow item.
type DataflowUser struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// DataflowData is a new service submission.
type DataflowData struct {
	Service        string         `json:"service"`
	User           DataflowUser   `json:"user"`
	Payload        map[string]any `json:"payload,omitempty"`
	ExternalSystem string         `json:"externalSystem,omitempty"`
}

// DataflowItem is a submission moving through the simulated processing pipeline.
type DataflowItem struct {
	ID             string         `json:"id"`
	Service        string         `json:"service"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         DataflowStatus `json:"status"`
	User           DataflowUser   `json:"user"`
	Payload        map[string]any `json:"payload,omitempty"`
	ExternalSystem string         `json:"externalSystem,omitempty"`
}
