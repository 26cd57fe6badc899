package main

import (
	"testing"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

func TestSetConfigValue(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, setConfigValue(cfg, "default.base_url", "https://api.test/api"))
	require.NoError(t, setConfigValue(cfg, "default.workspace_id", "w1"))
	require.NoError(t, setConfigValue(cfg, "auth.token", "tok"))
	require.NoError(t, setConfigValue(cfg, "auth.user_id", "u1"))
	assert.Equal(t, Config{
		Default: ConfigDefault{BaseURL: "https://api.test/api", WorkspaceID: "w1"},
		Auth:    ConfigAuth{Token: "tok", UserID: "u1"},
	}, *cfg)

	assert.Error(t, setConfigValue(cfg, "base_url", "x"))
	assert.Error(t, setConfigValue(cfg, "default.api_key", "x"))
	assert.Error(t, setConfigValue(cfg, "profile.name", "x"))
}

func TestConfigRoundTripsThroughTOML(t *testing.T) {
	data := []byte("[default]\nbase_url = 'https://api.test/api'\nworkspace_id = 'w1'\n\n[auth]\ntoken = 'tok'\n")
	var cfg Config
	require.NoError(t, toml.Unmarshal(data, &cfg))
	assert.Equal(t, "w1", cfg.Default.WorkspaceID)
	assert.Equal(t, "tok", cfg.Auth.Token)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ADAFRI_BASE_URL", "http://localhost:9000/api")
	t.Setenv("ADAFRI_TOKEN", "env-token")
	t.Setenv("ADAFRI_WORKSPACE_ID", "")

	cfg := &Config{Default: ConfigDefault{BaseURL: "https://api.test/api", WorkspaceID: "w1"}, Auth: ConfigAuth{Token: "tok"}}
	applyEnv(cfg)
	assert.Equal(t, "http://localhost:9000/api", cfg.Default.BaseURL)
	assert.Equal(t, "env-token", cfg.Auth.Token)
	assert.Equal(t, "w1", cfg.Default.WorkspaceID)
}

func TestConversationFlags(t *testing.T) {
	f := conversationFlags{channel: "c1"}
	conv, err := f.conversation()
	require.NoError(t, err)
	assert.Equal(t, adafri.ChannelConversation("c1"), conv)

	f = conversationFlags{dm: "d1"}
	conv, err = f.conversation()
	require.NoError(t, err)
	assert.Equal(t, adafri.DirectConversation("d1"), conv)

	_, err = (&conversationFlags{}).conversation()
	assert.Error(t, err)
	_, err = (&conversationFlags{channel: "c1", dm: "d1"}).conversation()
	assert.Error(t, err)
}

func TestParticipants(t *testing.T) {
	dm := adafri.DirectMessageChannel{
		ParticipantIDs: []string{"me", "u2"},
		Participants:   []adafri.User{{ID: "me", Username: "me"}, {ID: "u2", DisplayName: "Ada"}},
	}
	assert.Equal(t, "Ada", participants(dm, "me"))

	dm.Participants = nil
	assert.Equal(t, "u2", participants(dm, "me"))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken("short"))
	assert.Equal(t, "abcdefgh...wxyz", maskToken("abcdefghijklmnopqrstuvwxyz"))
}

func TestRenderConfigMasksToken(t *testing.T) {
	t.Setenv("ADAFRI_WORKSPACE_ID", "w-env")
	t.Setenv("ADAFRI_BASE_URL", "")
	t.Setenv("ADAFRI_TOKEN", "")
	t.Setenv("ADAFRI_USER_ID", "")

	cfg := &Config{
		Default: ConfigDefault{BaseURL: "https://api.test/api", WorkspaceID: "w1"},
		Auth:    ConfigAuth{Token: "abcdefghijklmnopqrstuvwxyz"},
	}
	out := renderConfig(cfg, applyEnv(cfg))

	assert.NotContains(t, out, "abcdefghijklmnopqrstuvwxyz")
	assert.Contains(t, out, "abcdefgh...wxyz")
	assert.Contains(t, out, "w-env  (from ADAFRI_WORKSPACE_ID)")
	assert.Contains(t, out, "https://api.test/api\n")
	assert.Contains(t, out, "auth.user_id")
	assert.Contains(t, out, "(not set)")
}

func TestFormatMessageReplyCount(t *testing.T) {
	m := adafri.Message{
		ID:          "m1",
		Sender:      adafri.User{ID: "u1", Username: "ada"},
		Content:     "hi",
		HasThread:   true,
		ThreadCount: 2,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	out := formatMessage(m, "")
	assert.Contains(t, out, "m1 ada: hi")
	assert.Contains(t, out, "2 replies")

	m.ThreadCount = 1
	out = formatMessage(m, "  ")
	assert.Contains(t, out, "1 reply\n")
	assert.NotContains(t, out, "replies")

	m.HasThread = false
	assert.NotContains(t, formatMessage(m, ""), "repl")
}
