package main

import (
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-civicsos/server/clock"
	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
	"github.com/mattermost/mattermost-plugin-civicsos/server/livesync"
	"github.com/mattermost/mattermost-plugin-civicsos/server/logging"
	"github.com/mattermost/mattermost-plugin-civicsos/server/metrics"
	"github.com/mattermost/mattermost-plugin-civicsos/server/notify"
	"github.com/mattermost/mattermost-plugin-civicsos/server/poster"
	"github.com/mattermost/mattermost-plugin-civicsos/server/session"
	"github.com/mattermost/mattermost-plugin-civicsos/server/sos"
)

// Plugin implements the interface expected by the Mattermost server to communicate between the server and plugin processes.
type Plugin struct {
	plugin.MattermostPlugin

	// client is the Mattermost server API client.
	client *pluginapi.Client

	// configurationLock synchronizes access to the configuration.
	configurationLock sync.RWMutex

	// configuration is the active plugin configuration. Consult getConfiguration and
	// setConfiguration for usage.
	configuration *configuration

	// kv is the plugin KV store backing the ledger, settings and sync state.
	kv ledger.KVStore

	clock   clock.Clock
	log     logging.Logger
	metrics *metrics.Metrics

	// ledger holds reports, SOS alerts and dataflow items.
	ledger *ledger.Store

	// settings holds each user's SOS settings.
	settings *sos.SettingsStore

	// registry manages all open client sessions.
	registry *session.Registry

	// scheduler runs the sync engines' poll jobs.
	scheduler livesync.JobScheduler

	// dispatcher fans notifications out to the websocket and the command-center channel.
	dispatcher *notify.Dispatcher

	// deduplicator is shared by all sessions so an official sees each new alert once.
	deduplicator *notify.Deduplicator

	// unsubscribe detaches the channel notifications from the ledger.
	unsubscribe func()
}

// OnActivate is invoked when the plugin is activated. If an error is returned, the plugin will be deactivated.
func (p *Plugin) OnActivate() error {
	p.client = pluginapi.NewClient(p.API, p.Driver)
	p.log = &p.client.Log
	p.kv = p.API
	p.clock = clock.New()
	p.metrics = metrics.New()

	config := p.getConfiguration()

	botID, err := p.API.EnsureBotUser(&model.Bot{
		Username:    config.botUsername(),
		DisplayName: config.botDisplayName(),
		Description: "Bot for posting SOS alerts and civic reports to the command center",
	})
	if err != nil {
		return errors.Wrap(err, "failed to ensure bot user")
	}

	p.API.LogInfo("Bot user initialized", "botID", botID, "username", config.botUsername())

	p.ledger = ledger.NewStore(p.kv, p.clock, p.log, ledger.Options{
		ValidatingDelay: config.validatingDelay(),
		ForwardedDelay:  config.forwardedDelay(),
		Metrics:         p.metrics,
	})
	if err := p.ledger.ResumePipelines(); err != nil {
		p.API.LogWarn("Failed to resume dataflow pipelines", "error", err.Error())
	}

	if config.DemoReportCount > 0 {
		seeded, err := p.ledger.SeedDemoReports(config.DemoReportCount, time.Now().UnixNano())
		if err != nil {
			p.API.LogWarn("Failed to seed demo reports", "error", err.Error())
		} else if seeded > 0 {
			p.API.LogInfo("Seeded demo reports", "count", seeded)
		}
	}

	p.settings = sos.NewSettingsStore(p.kv)
	p.deduplicator = notify.NewDeduplicator(p.log, p.clock)

	p.dispatcher = notify.NewDispatcher(p.deduplicator, p.log, p.metrics)
	p.dispatcher.AddSink("websocket", notify.NewWebSocketSink(p.API))
	p.dispatcher.AddSink("channel", notify.NewChannelSink(
		poster.New(p.API, botID, p.log),
		func() string { return p.getConfiguration().CommandCenterChannelID },
	))

	// Every new alert reaches the command center once, whichever session wrote it.
	p.unsubscribe = p.ledger.SubscribeToSOSAlerts(func(alert ledger.SOSAlert) {
		p.dispatcher.Dispatch(notify.Event{Kind: notify.KindSOSAlertCreated, Alert: &alert})
	})

	p.scheduler = livesync.NewClusterJobScheduler(p.API)
	p.registry = session.NewRegistry(p.metrics)

	return nil
}

// OnDeactivate is invoked when the plugin is deactivated.
func (p *Plugin) OnDeactivate() error {
	var result error

	if p.registry != nil {
		if err := p.registry.UnregisterAll(); err != nil {
			p.API.LogError("Failed to unregister all sessions during deactivation", "error", err.Error())
			result = err
		}
	}

	if p.unsubscribe != nil {
		p.unsubscribe()
	}

	if p.ledger != nil {
		p.ledger.Close()
	}

	if p.deduplicator != nil {
		p.deduplicator.Stop()
	}

	return result
}

// openSession creates, registers and starts a client session.
func (p *Plugin) openSession(cfg session.Config) (*session.Client, error) {
	config := p.getConfiguration()

	cfg.Countdown = config.countdown()
	cfg.SyncInterval = config.syncInterval()
	cfg.Ledger = p.ledger
	cfg.Dispatcher = p.dispatcher
	cfg.KV = p.kv
	cfg.Scheduler = p.scheduler
	cfg.Clock = p.clock
	cfg.Logger = p.log
	cfg.Metrics = p.metrics

	client, err := session.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	if err := p.registry.Register(client); err != nil {
		return nil, errors.Wrap(err, "failed to register session")
	}

	if err := client.Start(); err != nil {
		if unregisterErr := p.registry.Unregister(client.GetID()); unregisterErr != nil {
			p.API.LogWarn("Failed to unregister session", "session_id", client.GetID(), "error", unregisterErr.Error())
		}
		return nil, errors.Wrap(err, "failed to start session")
	}

	return client, nil
}

// applySettings pushes saved settings to every open session of the user.
func (p *Plugin) applySettings(userID string, settings sos.Settings) {
	for _, client := range p.registry.ListByUser(userID) {
		if err := client.Controller().UpdateSettings(settings); err != nil {
			p.API.LogWarn("Failed to apply settings to session", "session_id", client.GetID(), "error", err.Error())
		}
	}
}

// See https://developers.mattermost.com/extend/plugins/server/reference/
