package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mattermost/mattermost-plugin-civicsos/server/metrics"
)

// Registry manages all open client sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Client
	metrics  *metrics.Metrics
}

// NewRegistry creates a new session registry.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*Client),
		metrics:  m,
	}
}

// Register adds a session to the registry.
// Returns an error if a session with the same ID already exists.
func (r *Registry) Register(client *Client) error {
	if client == nil {
		return fmt.Errorf("cannot register nil session")
	}

	id := client.GetID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return fmt.Errorf("session with ID %s already registered", id)
	}

	r.sessions[id] = client
	r.metrics.SetActiveSessions(len(r.sessions))
	return nil
}

// Unregister removes a session from the registry and stops it.
// The session is always removed, even if Stop fails.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	client, exists := r.sessions[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("session with ID %s not found", id)
	}

	delete(r.sessions, id)
	r.metrics.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()

	// Stop after releasing the lock so other registry operations are not blocked
	if err := client.Stop(); err != nil {
		return fmt.Errorf("failed to stop session %s: %w", id, err)
	}

	return nil
}

// Get retrieves a session by its ID. Returns nil if it doesn't exist.
func (r *Registry) Get(id string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[id]
}

// List returns all registered sessions ordered by ID.
func (r *Registry) List() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.sessions))
	for _, client := range r.sessions {
		clients = append(clients, client)
	}
	sortByID(clients)

	return clients
}

// ListByUser returns the sessions opened by one user ordered by ID.
func (r *Registry) ListByUser(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for _, client := range r.sessions {
		if client.UserID() == userID {
			clients = append(clients, client)
		}
	}
	sortByID(clients)

	return clients
}

// UnregisterAll unregisters and stops all sessions.
// Returns the first error encountered, but continues stopping the remaining sessions.
func (r *Registry) UnregisterAll() error {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.sessions))
	for id, client := range r.sessions {
		clients = append(clients, client)
		delete(r.sessions, id)
	}
	r.metrics.SetActiveSessions(0)
	r.mu.Unlock()

	var firstError error
	for _, client := range clients {
		if err := client.Stop(); err != nil && firstError == nil {
			firstError = fmt.Errorf("failed to stop session %s: %w", client.GetID(), err)
		}
	}

	return firstError
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func sortByID(clients []*Client) {
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].GetID() < clients[j].GetID()
	})
}
