package sos

import (
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
	"github.com/mattermost/mattermost-plugin-civicsos/server/phrase"
)

// DefaultSecretPhrase is used until the user saves their own.
const DefaultSecretPhrase = "Help Help"

// ErrPhraseTooShort rejects a secret phrase below phrase.MinPhraseLength characters.
var ErrPhraseTooShort = fmt.Errorf("secret phrase must be at least %d characters", phrase.MinPhraseLength)

// Settings are the per-user SOS toggles.
type Settings struct {
	ShakeToSOS          bool   `json:"shakeToSosEnabled"`
	SecretPhraseEnabled bool   `json:"secretPhraseEnabled"`
	SecretPhrase        string `json:"secretPhrase"`
}

// DefaultSettings returns the settings of a user who never saved any.
func DefaultSettings() Settings {
	return Settings{SecretPhrase: DefaultSecretPhrase}
}

// Validate rejects settings that cannot be saved.
func (s Settings) Validate() error {
	if !phrase.ValidPhrase(s.SecretPhrase) {
		return ErrPhraseTooShort
	}
	return nil
}

// activePhrase is the phrase the listener should match, or "" when listening is off.
func (s Settings) activePhrase() string {
	if !s.SecretPhraseEnabled {
		return ""
	}
	return s.SecretPhrase
}

// SettingsStore persists Settings per user in the plugin KV store.
type SettingsStore struct {
	kv ledger.KVStore
}

// NewSettingsStore creates a settings store.
func NewSettingsStore(kv ledger.KVStore) *SettingsStore {
	return &SettingsStore{kv: kv}
}

func settingsKey(userID string) string {
	return fmt.Sprintf("settings_%s", userID)
}

// Get returns the user's settings, or the defaults if none are stored.
func (s *SettingsStore) Get(userID string) (Settings, error) {
	data, appErr := s.kv.KVGet(settingsKey(userID))
	if appErr != nil {
		return Settings{}, fmt.Errorf("failed to get settings: %w", appErr)
	}
	if data == nil {
		return DefaultSettings(), nil
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return settings, nil
}

// Save validates and stores the user's settings.
func (s *SettingsStore) Save(userID string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if appErr := s.kv.KVSet(settingsKey(userID), data); appErr != nil {
		return fmt.Errorf("failed to save settings: %w", appErr)
	}
	return nil
}

