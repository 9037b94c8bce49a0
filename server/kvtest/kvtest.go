// Package kvtest provides an in-memory stand-in for the plugin KV store.
package kvtest

import (
	"bytes"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
)

// Store is an in-memory KV store with the same method set as the plugin API KV calls.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte

	// FailSet makes KVSet fail for keys with this prefix.
	FailSet string
	// FailGet makes KVGet fail for keys with this prefix.
	FailGet string

	// BeforeCompareAndSet runs at the start of every KVCompareAndSet, outside the store lock,
	// so a test can slip in a concurrent write.
	BeforeCompareAndSet func(key string)
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) KVGet(key string) ([]byte, *model.AppError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailGet != "" && strings.HasPrefix(key, s.FailGet) {
		return nil, model.NewAppError("KVGet", "kvtest.get", nil, "injected failure", http.StatusInternalServerError)
	}

	value, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) KVSet(key string, value []byte) *model.AppError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSet != "" && strings.HasPrefix(key, s.FailSet) {
		return model.NewAppError("KVSet", "kvtest.set", nil, "injected failure", http.StatusInternalServerError)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// KVCompareAndSet writes newValue only if the stored value equals oldValue. A nil oldValue
// only inserts.
func (s *Store) KVCompareAndSet(key string, oldValue, newValue []byte) (bool, *model.AppError) {
	if hook := s.BeforeCompareAndSet; hook != nil {
		hook(key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSet != "" && strings.HasPrefix(key, s.FailSet) {
		return false, model.NewAppError("KVCompareAndSet", "kvtest.compare_and_set", nil, "injected failure", http.StatusInternalServerError)
	}

	current, exists := s.data[key]
	if oldValue == nil {
		if exists {
			return false, nil
		}
	} else if !exists || !bytes.Equal(current, oldValue) {
		return false, nil
	}

	stored := make([]byte, len(newValue))
	copy(stored, newValue)
	s.data[key] = stored
	return true, nil
}

func (s *Store) KVDelete(key string) *model.AppError {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Keys returns all stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
