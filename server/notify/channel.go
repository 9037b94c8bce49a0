package notify

import (
	"fmt"

	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

// ChannelPoster posts ledger records to a channel.
type ChannelPoster interface {
	PostSOSAlert(alert ledger.SOSAlert, channelID string) error
	PostReport(report ledger.Report, channelID string) error
}

// ChannelSink posts new SOS alerts and new reports to the command-center channel.
type ChannelSink struct {
	poster    ChannelPoster
	channelID func() string
}

// NewChannelSink creates a channel sink. channelID is read on every event so configuration
// changes apply immediately; an empty id disables posting.
func NewChannelSink(poster ChannelPoster, channelID func() string) *ChannelSink {
	return &ChannelSink{poster: poster, channelID: channelID}
}

func (s *ChannelSink) Send(event Event) error {
	channelID := s.channelID()
	if channelID == "" {
		return nil
	}

	switch event.Kind {
	case KindSOSAlertCreated:
		if event.Alert == nil {
			return nil
		}
		if err := s.poster.PostSOSAlert(*event.Alert, channelID); err != nil {
			return fmt.Errorf("failed to post SOS alert %s: %w", event.Alert.ID, err)
		}
	case KindReportCreated:
		if event.Report == nil {
			return nil
		}
		if err := s.poster.PostReport(*event.Report, channelID); err != nil {
			return fmt.Errorf("failed to post report %s: %w", event.Report.ID, err)
		}
	}
	return nil
}
