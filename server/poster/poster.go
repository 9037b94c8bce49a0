// Package poster publishes SOS alerts and reports to a Mattermost channel as the plugin bot.
package poster

import (
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-civicsos/server/formatter"
	"github.com/mattermost/mattermost-plugin-civicsos/server/hashtag"
	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
)

// PostCreator is the plugin API call used to create posts.
type PostCreator interface {
	CreatePost(post *model.Post) (*model.Post, *model.AppError)
}

// Poster posts ledger records to Mattermost channels.
// It only holds immutable configuration.
type Poster struct {
	api   PostCreator
	botID string
	log   logging.Logger
}

// New creates a new Poster instance.
func New(api PostCreator, botID string, log logging.Logger) *Poster {
	if log == nil {
		log = logging.NewNop()
	}
	return &Poster{
		api:   api,
		botID: botID,
		log:   log,
	}
}

// PostSOSAlert posts a formatted SOS alert, followed by a threaded reply carrying its hashtags.
// Only a failure of the main post is returned.
func (p *Poster) PostSOSAlert(alert ledger.SOSAlert, channelID string) error {
	return p.post(channelID, formatter.FormatSOSAlert(alert), hashtag.ForSOSAlert(alert), "sos_alert_id", alert.ID)
}

// PostReport posts a formatted report, followed by a threaded reply carrying its hashtags.
// Only a failure of the main post is returned.
func (p *Poster) PostReport(report ledger.Report, channelID string) error {
	return p.post(channelID, formatter.FormatReport(report), hashtag.ForReport(report), "report_id", report.ID)
}

func (p *Poster) post(channelID string, attachment *model.SlackAttachment, tags string, idKey, id string) error {
	post := &model.Post{
		UserId:    p.botID,
		ChannelId: channelID,
		Type:      model.PostTypeSlackAttachment,
		Props:     model.StringInterface{},
	}
	model.ParseSlackAttachment(post, []*model.SlackAttachment{attachment})

	created, appErr := p.api.CreatePost(post)
	if appErr != nil {
		return fmt.Errorf("failed to create post: %w", appErr)
	}

	if tags == "" {
		return nil
	}

	reply := &model.Post{
		UserId:    p.botID,
		ChannelId: channelID,
		RootId:    created.Id,
		Message:   tags,
	}
	if _, appErr := p.api.CreatePost(reply); appErr != nil {
		p.log.Error("Failed to post hashtag reply", "error", appErr.Error(), idKey, id)
	}
	return nil
}
