package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-civicsos/server/clock"
	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
)

const (
	// DeduplicationCacheTTL is how long a delivered notification is remembered.
	DeduplicationCacheTTL = 24 * time.Hour

	// DeduplicationCleanupInterval is how often expired entries are dropped.
	DeduplicationCleanupInterval = 10 * time.Minute
)

// Deduplicator remembers which (user, alert) pairs were already notified, so an official
// with several open sessions gets one toast per alert.
type Deduplicator struct {
	log         logging.Logger
	clock       clock.Clock
	seen        map[string]time.Time
	mu          sync.RWMutex
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
}

// NewDeduplicator creates a deduplicator and starts its cleanup loop.
func NewDeduplicator(log logging.Logger, clk clock.Clock) *Deduplicator {
	d := &Deduplicator{
		log:         log,
		clock:       clk,
		seen:        make(map[string]time.Time),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	go d.cleanupLoop()

	return d
}

// Record checks and marks a pair in one step. Returns true the first time it sees the pair.
func (d *Deduplicator) Record(userID, alertID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := d.namespace(userID, alertID)
	if _, exists := d.seen[key]; exists {
		return false
	}

	d.seen[key] = d.clock.Now()
	return true
}

// Len returns the number of remembered pairs.
func (d *Deduplicator) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.seen)
}

func (d *Deduplicator) namespace(userID, alertID string) string {
	return fmt.Sprintf("%s:%s", userID, alertID)
}

func (d *Deduplicator) cleanupLoop() {
	ticker := time.NewTicker(DeduplicationCleanupInterval)
	defer ticker.Stop()
	defer close(d.cleanupDone)

	for {
		select {
		case <-ticker.C:
			d.cleanup()
		case <-d.stopCleanup:
			return
		}
	}
}

// cleanup removes entries older than DeduplicationCacheTTL.
func (d *Deduplicator) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	expired := 0

	for key, seenAt := range d.seen {
		if now.Sub(seenAt) > DeduplicationCacheTTL {
			delete(d.seen, key)
			expired++
		}
	}

	if expired > 0 {
		d.log.Debug("Cleaned up expired notification dedup entries",
			"expired", expired,
			"remaining", len(d.seen))
	}
}

// Stop ends the cleanup loop and waits for it. Safe to call more than once.
func (d *Deduplicator) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCleanup)
		<-d.cleanupDone
	})
}
