// Package ledger is the shared store of reports, SOS alerts and dataflow submissions.
//
// Records live in the plugin KV store under per-record keys plus newest-first index keys.
// Writes are last-write-wins per patch. A process-local mutex keeps index updates consistent.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-civicsos/server/clock"
	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
	"github.com/mattermost/mattermost-plugin-civicsos/server/metrics"
)

// ErrNotFound is returned when an update references an id that does not exist.
var ErrNotFound = errors.New("not found")

const (
	reportKeyPrefix   = "ledger_report_"
	sosKeyPrefix      = "ledger_sos_"
	dataflowKeyPrefix = "ledger_dataflow_"

	reportIndexKey   = "ledger_index_reports"
	sosIndexKey      = "ledger_index_sos"
	dataflowIndexKey = "ledger_index_dataflow"
)

const (
	DefaultValidatingDelay = 5 * time.Second
	DefaultForwardedDelay  = 12 * time.Second
)

// KVStore is the subset of the plugin API used for persistence.
type KVStore interface {
	KVGet(key string) ([]byte, *model.AppError)
	KVSet(key string, value []byte) *model.AppError
	KVCompareAndSet(key string, oldValue, newValue []byte) (bool, *model.AppError)
	KVDelete(key string) *model.AppError
}

// Options configures a Store.
type Options struct {
	ValidatingDelay time.Duration
	ForwardedDelay  time.Duration
	Metrics         *metrics.Metrics
}

// Store implements the ledger operations on top of a KVStore.
type Store struct {
	kv      KVStore
	clock   clock.Clock
	log     logging.Logger
	metrics *metrics.Metrics

	validatingDelay time.Duration
	forwardedDelay  time.Duration

	mu sync.Mutex

	subMu       sync.RWMutex
	subscribers map[uint64]func(SOSAlert)
	nextSubID   uint64

	timerMu sync.Mutex
	timers  map[string][]clock.Timer
	closed  bool
}

// NewStore creates a ledger store. Zero delays fall back to the defaults.
func NewStore(kv KVStore, clk clock.Clock, log logging.Logger, opts Options) *Store {
	if opts.ValidatingDelay <= 0 {
		opts.ValidatingDelay = DefaultValidatingDelay
	}
	if opts.ForwardedDelay <= opts.ValidatingDelay {
		opts.ForwardedDelay = opts.ValidatingDelay + (DefaultForwardedDelay - DefaultValidatingDelay)
	}

	return &Store{
		kv:              kv,
		clock:           clk,
		log:             log,
		metrics:         opts.Metrics,
		validatingDelay: opts.ValidatingDelay,
		forwardedDelay:  opts.ForwardedDelay,
		subscribers:     make(map[uint64]func(SOSAlert)),
		timers:          make(map[string][]clock.Timer),
	}
}

// GetReports returns all reports, newest first.
func (s *Store) GetReports() ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return loadAll[Report](s, reportIndexKey, reportKeyPrefix)
}

// GetReport returns a single report or ErrNotFound.
func (s *Store) GetReport(id string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report Report
	found, err := s.getJSON(reportKeyPrefix+id, &report)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &report, nil
}

// CreateReport stores a new report submitted by reporter. The report starts Under Review
// with one log entry attributed to the reporter. An empty or "Unassigned" department leaves
// the report unassigned.
func (s *Store) CreateReport(data ReportData, reporter Reporter, assignedDept string) (*Report, error) {
	now := s.clock.Now()

	location := reporter.Location.Address
	if location == "" {
		location = data.Coords.String()
	}

	priority := data.Priority
	if priority == "" {
		priority = "Low"
	}

	report := Report{
		ID:          uuid.NewString(),
		ReporterID:  reporter.UserID,
		Title:       data.Title,
		Category:    data.Category,
		Description: data.Description,
		Status:      StatusUnderReview,
		Priority:    priority,
		Date:        now,
		Location:    location,
		Coords:      data.Coords,
		Photo:       data.Photo,
		Video:       data.Video,
		Updates: []UpdateEntry{
			{Timestamp: now, Message: "Report submitted", By: reporter.Name},
		},
	}
	if assignedDept != "" && assignedDept != "Unassigned" {
		report.AssignedTo = &Assignment{
			ID:   departmentID(assignedDept),
			Name: assignedDept,
			Role: "Department",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insert(reportIndexKey, reportKeyPrefix, report.ID, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return &report, nil
}

// UpdateReport merges patch into the report. A patch carrying a status always appends one
// log entry attributed to the system, whatever else the patch changes.
func (s *Store) UpdateReport(id string, patch ReportPatch) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report Report
	found, err := s.getJSON(reportKeyPrefix+id, &report)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if patch.Title != nil {
		report.Title = *patch.Title
	}
	if patch.Description != nil {
		report.Description = *patch.Description
	}
	if patch.Priority != nil {
		report.Priority = *patch.Priority
	}
	if patch.AssignedTo != nil {
		assignment := *patch.AssignedTo
		report.AssignedTo = &assignment
	}
	if patch.Status != nil {
		report.Status = *patch.Status
		report.Updates = append(report.Updates, UpdateEntry{
			Timestamp: s.clock.Now(),
			Message:   fmt.Sprintf("Status changed to %s", *patch.Status),
			By:        SystemActor,
		})
	}

	if err := s.setJSON(reportKeyPrefix+id, report); err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}
	return &report, nil
}

// GetSOSAlerts returns all alerts, newest first.
func (s *Store) GetSOSAlerts() ([]SOSAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return loadAll[SOSAlert](s, sosIndexKey, sosKeyPrefix)
}

// CreateSOSAlert stores a new Active alert with a snapshot of the reporter's identity and
// location. Subscribers are notified before it returns.
func (s *Store) CreateSOSAlert(reporter Reporter, video string) (*SOSAlert, error) {
	location := reporter.Location
	if location.Address == "" {
		location.Address = location.Coords.String()
	}

	alert := SOSAlert{
		ID:     uuid.NewString(),
		UserID: reporter.UserID,
		User: AlertUser{
			Name:           reporter.Name,
			Phone:          reporter.Phone,
			ProfilePicture: reporter.ProfilePicture,
		},
		Timestamp:     s.clock.Now(),
		Location:      location,
		Status:        AlertActive,
		RecordedVideo: video,
	}

	s.mu.Lock()
	err := s.insert(sosIndexKey, sosKeyPrefix, alert.ID, alert)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to create SOS alert: %w", err)
	}

	s.notifySubscribers(alert)
	return &alert, nil
}

// UpdateSOSAlert changes the status of an alert.
func (s *Store) UpdateSOSAlert(id string, patch SOSAlertPatch) (*SOSAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var alert SOSAlert
	found, err := s.getJSON(sosKeyPrefix+id, &alert)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if patch.Status != nil {
		alert.Status = *patch.Status
	}

	if err := s.setJSON(sosKeyPrefix+id, alert); err != nil {
		return nil, fmt.Errorf("failed to update SOS alert: %w", err)
	}
	return &alert, nil
}

// DeleteSOSAlert removes a resolved alert. It returns false if the id is unknown.
func (s *Store) DeleteSOSAlert(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remove(sosIndexKey, sosKeyPrefix, id)
}

// SubscribeToSOSAlerts registers cb for every new alert. The returned function unsubscribes
// and is safe to call more than once.
func (s *Store) SubscribeToSOSAlerts(cb func(SOSAlert)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = cb
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notifySubscribers(alert SOSAlert) {
	s.subMu.RLock()
	callbacks := make([]func(SOSAlert), 0, len(s.subscribers))
	for _, cb := range s.subscribers {
		callbacks = append(callbacks, cb)
	}
	s.subMu.RUnlock()

	for _, cb := range callbacks {
		s.invokeSubscriber(cb, alert)
	}
}

func (s *Store) invokeSubscriber(cb func(SOSAlert), alert SOSAlert) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("SOS alert subscriber panicked", "alert_id", alert.ID, "panic", fmt.Sprint(r))
		}
	}()
	cb(alert)
}

// insert writes the record and then prepends its id to the index. Caller holds s.mu.
func (s *Store) insert(indexKey, prefix, id string, v any) error {
	if err := s.setJSON(prefix+id, v); err != nil {
		return err
	}

	index, err := s.loadIndex(indexKey)
	if err != nil {
		return err
	}
	index = append([]string{id}, index...)

	if err := s.setJSON(indexKey, index); err != nil {
		if appErr := s.kv.KVDelete(prefix + id); appErr != nil {
			s.log.Warn("Failed to roll back record after index write failure", "key", prefix+id, "error", appErr.Error())
		}
		return err
	}
	return nil
}

// remove deletes the record and its index entry. Caller holds s.mu.
func (s *Store) remove(indexKey, prefix, id string) (bool, error) {
	data, appErr := s.kv.KVGet(prefix + id)
	if appErr != nil {
		return false, fmt.Errorf("failed to get %s: %w", prefix+id, appErr)
	}
	if data == nil {
		return false, nil
	}

	index, err := s.loadIndex(indexKey)
	if err != nil {
		return false, err
	}
	filtered := index[:0]
	for _, existing := range index {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	if err := s.setJSON(indexKey, filtered); err != nil {
		return false, err
	}

	if appErr := s.kv.KVDelete(prefix + id); appErr != nil {
		return false, fmt.Errorf("failed to delete %s: %w", prefix+id, appErr)
	}
	return true, nil
}

func (s *Store) loadIndex(key string) ([]string, error) {
	var index []string
	if _, err := s.getJSON(key, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// loadAll reads every record listed in an index. Ids whose record is gone are skipped.
func loadAll[T any](s *Store, indexKey, prefix string) ([]T, error) {
	index, err := s.loadIndex(indexKey)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(index))
	for _, id := range index {
		var record T
		found, err := s.getJSON(prefix+id, &record)
		if err != nil {
			return nil, err
		}
		if !found {
			s.log.Warn("Ledger index references a missing record", "key", prefix+id)
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *Store) getJSON(key string, v any) (bool, error) {
	data, appErr := s.kv.KVGet(key)
	if appErr != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, appErr)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if appErr := s.kv.KVSet(key, data); appErr != nil {
		return fmt.Errorf("failed to set %s: %w", key, appErr)
	}
	return nil
}
