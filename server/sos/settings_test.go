package sos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-civicsos/server/kvtest"
)

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		phrase  string
		wantErr bool
	}{
		{"default phrase", DefaultSecretPhrase, false},
		{"three characters", "sos", false},
		{"padded short phrase", "  hi  ", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Settings{SecretPhraseEnabled: true, SecretPhrase: tt.phrase}.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPhraseTooShort)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingsStore(t *testing.T) {
	t.Run("defaults when nothing is stored", func(t *testing.T) {
		store := NewSettingsStore(kvtest.New())

		settings, err := store.Get("user-1")
		require.NoError(t, err)
		assert.Equal(t, DefaultSettings(), settings)
		assert.False(t, settings.ShakeToSOS)
		assert.False(t, settings.SecretPhraseEnabled)
		assert.Equal(t, "Help Help", settings.SecretPhrase)
	})

	t.Run("save and load", func(t *testing.T) {
		kv := kvtest.New()
		store := NewSettingsStore(kv)

		saved := Settings{ShakeToSOS: true, SecretPhraseEnabled: true, SecretPhrase: "red umbrella"}
		require.NoError(t, store.Save("user-1", saved))

		loaded, err := store.Get("user-1")
		require.NoError(t, err)
		assert.Equal(t, saved, loaded)
		assert.Equal(t, []string{"settings_user-1"}, kv.Keys())

		other, err := store.Get("user-2")
		require.NoError(t, err)
		assert.Equal(t, DefaultSettings(), other)
	})

	t.Run("rejects a short phrase", func(t *testing.T) {
		kv := kvtest.New()
		store := NewSettingsStore(kv)

		err := store.Save("user-1", Settings{SecretPhraseEnabled: true, SecretPhrase: "no"})
		assert.ErrorIs(t, err, ErrPhraseTooShort)
		assert.Empty(t, kv.Keys())
	})

	t.Run("storage failure", func(t *testing.T) {
		kv := kvtest.New()
		kv.FailGet = "settings_"
		store := NewSettingsStore(kv)

		_, err := store.Get("user-1")
		assert.Error(t, err)
	})
}
