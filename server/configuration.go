package main

import (
	"reflect"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/pkg/errors"
)

const (
	defaultBotUsername       = "civic-sos"
	defaultBotDisplayName    = "Civic SOS"
	defaultSyncInterval      = 2000
	minSyncInterval          = 500
	defaultCountdownSeconds  = 5
	maxCountdownSeconds      = 60
	defaultValidatingSeconds = 5
	defaultForwardedSeconds  = 12
)

// configuration captures the plugin's external configuration as exposed in the Mattermost server
// configuration, as well as values computed from the configuration. Any public fields will be
// deserialized from the Mattermost server configuration in OnConfigurationChange.
//
// As plugins are inherently concurrent (hooks being called asynchronously), and the plugin
// configuration can change at any time, access to the configuration must be synchronized. The
// strategy used in this plugin is to guard a pointer to the configuration, and clone the entire
// struct whenever it changes.
//
// Zero values select the defaults.
type configuration struct {
	// CommandCenterChannelID receives a post for every new SOS alert and report. Empty disables
	// channel posts.
	CommandCenterChannelID string `json:"commandcenterchannelid"`

	BotUsername    string `json:"botusername"`
	BotDisplayName string `json:"botdisplayname"`

	SyncIntervalMilliseconds int `json:"syncintervalmilliseconds"`
	CountdownSeconds         int `json:"countdownseconds"`
	ValidatingDelaySeconds   int `json:"validatingdelayseconds"`
	ForwardedDelaySeconds    int `json:"forwardeddelayseconds"`

	// DemoReportCount seeds an empty ledger with generated reports on activation.
	DemoReportCount int `json:"demoreportcount"`
}

// Clone shallow copies the configuration. All fields are values.
func (c *configuration) Clone() *configuration {
	clone := *c
	return &clone
}

// validate rejects settings the components cannot run with.
func (c *configuration) validate() error {
	if c.CommandCenterChannelID != "" && !model.IsValidId(c.CommandCenterChannelID) {
		return errors.Errorf("command center channel ID %q is not a valid ID", c.CommandCenterChannelID)
	}
	if c.SyncIntervalMilliseconds != 0 && c.SyncIntervalMilliseconds < minSyncInterval {
		return errors.Errorf("sync interval must be at least %dms", minSyncInterval)
	}
	if c.CountdownSeconds < 0 || c.CountdownSeconds > maxCountdownSeconds {
		return errors.Errorf("countdown cannot be negative or longer than %d seconds", maxCountdownSeconds)
	}
	if c.ValidatingDelaySeconds < 0 || c.ForwardedDelaySeconds < 0 {
		return errors.New("dataflow delays cannot be negative")
	}
	if c.forwardedDelay() <= c.validatingDelay() {
		return errors.New("forwarded delay must be longer than validating delay")
	}
	if c.DemoReportCount < 0 {
		return errors.New("demo report count cannot be negative")
	}
	return nil
}

func (c *configuration) botUsername() string {
	if c.BotUsername == "" {
		return defaultBotUsername
	}
	return c.BotUsername
}

func (c *configuration) botDisplayName() string {
	if c.BotDisplayName == "" {
		return defaultBotDisplayName
	}
	return c.BotDisplayName
}

func (c *configuration) syncInterval() time.Duration {
	if c.SyncIntervalMilliseconds == 0 {
		return defaultSyncInterval * time.Millisecond
	}
	return time.Duration(c.SyncIntervalMilliseconds) * time.Millisecond
}

func (c *configuration) countdown() time.Duration {
	if c.CountdownSeconds == 0 {
		return defaultCountdownSeconds * time.Second
	}
	return time.Duration(c.CountdownSeconds) * time.Second
}

func (c *configuration) validatingDelay() time.Duration {
	if c.ValidatingDelaySeconds == 0 {
		return defaultValidatingSeconds * time.Second
	}
	return time.Duration(c.ValidatingDelaySeconds) * time.Second
}

func (c *configuration) forwardedDelay() time.Duration {
	if c.ForwardedDelaySeconds == 0 {
		return defaultForwardedSeconds * time.Second
	}
	return time.Duration(c.ForwardedDelaySeconds) * time.Second
}

// getConfiguration retrieves the active configuration under lock, making it safe to use
// concurrently. The active configuration may change underneath the client of this method, but
// the struct returned by this API call is considered immutable.
func (p *Plugin) getConfiguration() *configuration {
	p.configurationLock.RLock()
	defer p.configurationLock.RUnlock()

	if p.configuration == nil {
		return &configuration{}
	}

	return p.configuration
}

// setConfiguration replaces the active configuration under lock.
//
// Do not call setConfiguration while holding the configurationLock, as sync.Mutex is not
// reentrant. In particular, avoid using the plugin API entirely, as this may in turn trigger a
// hook back into the plugin.
//
// This method panics if setConfiguration is called with the existing configuration. This almost
// certainly means that the configuration was modified without being cloned and may result in
// an unsafe access.
func (p *Plugin) setConfiguration(configuration *configuration) {
	p.configurationLock.Lock()
	defer p.configurationLock.Unlock()

	if configuration != nil && p.configuration == configuration {
		// Ignore assignment if the configuration struct is empty. Go will optimize the
		// allocation for same to point at the same memory address, breaking the check
		// above.
		if reflect.ValueOf(*configuration).NumField() == 0 {
			return
		}

		panic("setConfiguration called with the existing configuration")
	}

	p.configuration = configuration
}

// OnConfigurationChange is invoked when configuration changes may have been made.
// Sync interval and countdown changes apply to sessions opened afterwards; dataflow delays
// apply after the plugin is restarted.
func (p *Plugin) OnConfigurationChange() error {
	var newConfig = new(configuration)

	// Load the public configuration fields from the Mattermost server configuration.
	if err := p.API.LoadPluginConfiguration(newConfig); err != nil {
		return errors.Wrap(err, "failed to load plugin configuration")
	}

	if err := newConfig.validate(); err != nil {
		return errors.Wrap(err, "invalid plugin configuration")
	}

	oldConfig := p.getConfiguration()
	p.setConfiguration(newConfig)

	if oldConfig.CommandCenterChannelID != newConfig.CommandCenterChannelID {
		p.API.LogInfo("Command center channel changed", "channel_id", newConfig.CommandCenterChannelID)
	}

	return nil
}
