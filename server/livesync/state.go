package livesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

// maxUpdateAttempts bounds the compare-and-set retries of one Update.
const maxUpdateAttempts = 5

// ErrConflict is returned when other writers kept changing the record for every attempt.
var ErrConflict = errors.New("sync state changed concurrently")

// Snapshot is what the previous successful poll saw. Diffs are computed against it.
type Snapshot struct {
	AlertIDs       []string                       `json:"alertIds"`
	ReportStatuses map[string]ledger.ReportStatus `json:"reportStatuses"`
}

// Record is the sync state of one user and role. It is stored as a single KV value.
type Record struct {
	// Snapshot is nil before the first successful poll.
	Snapshot            *Snapshot `json:"snapshot,omitempty"`
	LastPoll            time.Time `json:"lastPoll"`
	LastSuccess         time.Time `json:"lastSuccess"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
}

// StateStore persists sync state in the KV store. The record is scoped to one user and role,
// so every session of the same user shares what has already been seen.
type StateStore struct {
	kv  ledger.KVStore
	key string
}

// NewStateStore creates a state store for a user and role.
func NewStateStore(kv ledger.KVStore, userID string, role Role) *StateStore {
	return &StateStore{
		kv:  kv,
		key: fmt.Sprintf("sync_%s_%s", userID, role),
	}
}

// Get returns the stored record, or the zero record if nothing was stored yet.
func (s *StateStore) Get() (Record, error) {
	record, _, err := s.load()
	return record, err
}

// Update loads the record, lets fn modify it and writes it back with compare-and-set. When
// another session wrote in between, fn runs again on the fresh record. An error from fn
// aborts the update without writing.
func (s *StateStore) Update(fn func(*Record) error) (Record, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		record, raw, err := s.load()
		if err != nil {
			return Record{}, err
		}

		if err := fn(&record); err != nil {
			return Record{}, err
		}

		data, err := json.Marshal(record)
		if err != nil {
			return Record{}, fmt.Errorf("failed to marshal sync state: %w", err)
		}

		saved, appErr := s.kv.KVCompareAndSet(s.key, raw, data)
		if appErr != nil {
			return Record{}, fmt.Errorf("failed to save sync state: %w", appErr)
		}
		if saved {
			return record, nil
		}
	}
	return Record{}, fmt.Errorf("failed to save sync state after %d attempts: %w", maxUpdateAttempts, ErrConflict)
}

func (s *StateStore) load() (Record, []byte, error) {
	data, appErr := s.kv.KVGet(s.key)
	if appErr != nil {
		return Record{}, nil, fmt.Errorf("failed to get sync state: %w", appErr)
	}
	if data == nil {
		return Record{}, nil, nil
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, nil, fmt.Errorf("failed to unmarshal sync state: %w", err)
	}
	return record, data, nil
}
