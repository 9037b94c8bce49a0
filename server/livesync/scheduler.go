package livesync

import (
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi/cluster"
)

// Job is a scheduled job that can be closed.
type Job interface {
	Close() error
}

// JobScheduler schedules recurring jobs.
type JobScheduler interface {
	Schedule(
		jobID string,
		nextWaitInterval cluster.NextWaitInterval,
		callback func(),
	) (Job, error)
}

// ClusterJobScheduler runs jobs on Mattermost's cluster job system, so a job runs on one
// server at a time.
type ClusterJobScheduler struct {
	api plugin.API
}

// NewClusterJobScheduler creates a scheduler backed by the plugin API.
func NewClusterJobScheduler(api plugin.API) *ClusterJobScheduler {
	return &ClusterJobScheduler{api: api}
}

func (s *ClusterJobScheduler) Schedule(
	jobID string,
	nextWaitInterval cluster.NextWaitInterval,
	callback func(),
) (Job, error) {
	return cluster.Schedule(s.api, jobID, nextWaitInterval, callback)
}
