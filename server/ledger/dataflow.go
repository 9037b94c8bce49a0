package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// CreateDataflowSubmission stores a new item in the Received stage and schedules its
// transitions to Validating and Forwarded.
func (s *Store) CreateDataflowSubmission(data DataflowData) (*DataflowItem, error) {
	item := DataflowItem{
		ID:             uuid.NewString(),
		Service:        data.Service,
		Timestamp:      s.clock.Now(),
		Status:         DataflowReceived,
		User:           data.User,
		Payload:        data.Payload,
		ExternalSystem: data.ExternalSystem,
	}

	s.mu.Lock()
	err := s.insert(dataflowIndexKey, dataflowKeyPrefix, item.ID, item)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to create dataflow submission: %w", err)
	}

	s.metrics.ObserveDataflowTransition(string(DataflowReceived))
	s.schedulePipeline(item.ID, 0)
	return &item, nil
}

// GetDataflowSubmissions returns every item, newest first.
func (s *Store) GetDataflowSubmissions() ([]DataflowItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return loadAll[DataflowItem](s, dataflowIndexKey, dataflowKeyPrefix)
}

// GetUserDataflow returns the items submitted by userName, newest first.
func (s *Store) GetUserDataflow(userName string) ([]DataflowItem, error) {
	items, err := s.GetDataflowSubmissions()
	if err != nil {
		return nil, err
	}

	var out []DataflowItem
	for _, item := range items {
		if item.User.Name == userName {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// DeleteDataflowSubmission removes an item and cancels its pending transitions.
func (s *Store) DeleteDataflowSubmission(id string) (bool, error) {
	s.stopTimers(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remove(dataflowIndexKey, dataflowKeyPrefix, id)
}

// ResumePipelines reschedules the transitions of unfinished items, typically after a
// restart. Stages already due are applied immediately.
func (s *Store) ResumePipelines() error {
	items, err := s.GetDataflowSubmissions()
	if err != nil {
		return fmt.Errorf("failed to load dataflow submissions: %w", err)
	}

	now := s.clock.Now()
	resumed := 0
	for _, item := range items {
		if item.Status.Terminal() {
			continue
		}

		elapsed := now.Sub(item.Timestamp)
		if due := s.stageAt(elapsed); due.rank() > item.Status.rank() {
			s.advance(item.ID, due)
		}
		if elapsed < s.forwardedDelay {
			s.schedulePipeline(item.ID, elapsed)
		}
		resumed++
	}

	if resumed > 0 {
		s.log.Info("Resumed dataflow pipelines", "count", resumed)
	}
	return nil
}

// Close cancels every pending pipeline transition. Transitions never fire after Close.
func (s *Store) Close() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	s.closed = true
	for id, timers := range s.timers {
		for _, t := range timers {
			t.Stop()
		}
		delete(s.timers, id)
	}
}

func (s *Store) stageAt(elapsed time.Duration) DataflowStatus {
	switch {
	case elapsed >= s.forwardedDelay:
		return DataflowForwarded
	case elapsed >= s.validatingDelay:
		return DataflowValidating
	default:
		return DataflowReceived
	}
}

// schedulePipeline arms the remaining stage timers of an item created elapsed ago.
func (s *Store) schedulePipeline(id string, elapsed time.Duration) {
	stages := []struct {
		at     time.Duration
		status DataflowStatus
	}{
		{s.validatingDelay, DataflowValidating},
		{s.forwardedDelay, DataflowForwarded},
	}

	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.closed {
		return
	}

	for _, stage := range stages {
		if elapsed >= stage.at {
			continue
		}
		status := stage.status
		last := status.Terminal()
		timer := s.clock.AfterFunc(stage.at-elapsed, func() {
			s.advance(id, status)
			if last {
				s.forgetTimers(id)
			}
		})
		s.timers[id] = append(s.timers[id], timer)
	}
}

// advance moves an item forward to status. Deleted items and regressions are ignored.
func (s *Store) advance(id string, status DataflowStatus) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Dataflow transition panicked", "item_id", id, "panic", fmt.Sprint(r))
		}
	}()

	s.timerMu.Lock()
	closed := s.closed
	s.timerMu.Unlock()
	if closed {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var item DataflowItem
	found, err := s.getJSON(dataflowKeyPrefix+id, &item)
	if err != nil {
		s.log.Error("Failed to load dataflow item for transition", "item_id", id, "error", err.Error())
		return
	}
	if !found {
		s.log.Debug("Skipping transition for deleted dataflow item", "item_id", id)
		return
	}
	if item.Status.rank() >= status.rank() {
		return
	}

	item.Status = status
	if err := s.setJSON(dataflowKeyPrefix+id, item); err != nil {
		s.log.Error("Failed to save dataflow transition", "item_id", id, "status", string(status), "error", err.Error())
		return
	}
	s.metrics.ObserveDataflowTransition(string(status))
}

func (s *Store) stopTimers(id string) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	for _, t := range s.timers[id] {
		t.Stop()
	}
	delete(s.timers, id)
}

func (s *Store) forgetTimers(id string) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	delete(s.timers, id)
}

// pendingTimers reports how many items still have armed transitions.
func (s *Store) pendingTimers() int {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	return len(s.timers)
}

