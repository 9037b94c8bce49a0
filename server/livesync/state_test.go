package livesync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-civicsos/server/kvtest"
	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

func TestStateStore(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty before the first update", func(t *testing.T) {
		store := NewStateStore(kvtest.New(), "user-1", RoleCitizen)

		record, err := store.Get()
		require.NoError(t, err)
		assert.Nil(t, record.Snapshot)
		assert.True(t, record.LastPoll.IsZero())
		assert.Zero(t, record.ConsecutiveFailures)
	})

	t.Run("one record per user and role", func(t *testing.T) {
		kv := kvtest.New()
		citizen := NewStateStore(kv, "user-1", RoleCitizen)
		official := NewStateStore(kv, "user-1", RoleOfficial)

		snapshot := Snapshot{
			AlertIDs:       []string{"A2", "A1"},
			ReportStatuses: map[string]ledger.ReportStatus{"R1": ledger.StatusEmergency},
		}
		_, err := citizen.Update(func(r *Record) error {
			r.Snapshot = &snapshot
			r.LastPoll = now
			r.LastSuccess = now
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"sync_user-1_citizen"}, kv.Keys())

		record, err := citizen.Get()
		require.NoError(t, err)
		require.NotNil(t, record.Snapshot)
		assert.Equal(t, snapshot, *record.Snapshot)
		assert.True(t, now.Equal(record.LastSuccess))

		other, err := official.Get()
		require.NoError(t, err)
		assert.Nil(t, other.Snapshot)
	})

	t.Run("failures accumulate", func(t *testing.T) {
		store := NewStateStore(kvtest.New(), "user-1", RoleOfficial)

		for i := 1; i <= 3; i++ {
			record, err := store.Update(func(r *Record) error {
				r.ConsecutiveFailures++
				r.LastError = "boom"
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, i, record.ConsecutiveFailures)
		}

		record, err := store.Get()
		require.NoError(t, err)
		assert.Equal(t, 3, record.ConsecutiveFailures)
		assert.Equal(t, "boom", record.LastError)
	})

	t.Run("concurrent write reruns the update", func(t *testing.T) {
		kv := kvtest.New()
		store := NewStateStore(kv, "user-1", RoleOfficial)
		other := NewStateStore(kv, "user-1", RoleOfficial)

		calls := 0
		injected := false
		kv.BeforeCompareAndSet = func(string) {
			if !injected {
				injected = true
				_, err := other.Update(func(r *Record) error {
					r.ConsecutiveFailures = 10
					return nil
				})
				require.NoError(t, err)
			}
		}

		record, err := store.Update(func(r *Record) error {
			calls++
			r.ConsecutiveFailures++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 11, record.ConsecutiveFailures, "the rerun builds on the other writer's value")
	})

	t.Run("gives up when every attempt conflicts", func(t *testing.T) {
		kv := kvtest.New()
		store := NewStateStore(kv, "user-1", RoleOfficial)

		writes := 0
		kv.BeforeCompareAndSet = func(key string) {
			writes++
			require.Nil(t, kv.KVSet(key, []byte(fmt.Sprintf(`{"consecutiveFailures":%d}`, writes))))
		}

		_, err := store.Update(func(r *Record) error { return nil })
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("update error aborts the write", func(t *testing.T) {
		kv := kvtest.New()
		store := NewStateStore(kv, "user-1", RoleOfficial)
		abort := errors.New("abort")

		_, err := store.Update(func(r *Record) error {
			r.ConsecutiveFailures = 5
			return abort
		})
		assert.ErrorIs(t, err, abort)
		assert.Empty(t, kv.Keys())
	})

	t.Run("store failures", func(t *testing.T) {
		kv := kvtest.New()
		store := NewStateStore(kv, "user-1", RoleOfficial)

		kv.FailSet = "sync_"
		_, err := store.Update(func(r *Record) error { return nil })
		assert.Error(t, err)

		kv.FailSet = ""
		kv.FailGet = "sync_"
		_, err = store.Get()
		assert.Error(t, err)
		_, err = store.Update(func(r *Record) error { return nil })
		assert.Error(t, err)
	})
}
