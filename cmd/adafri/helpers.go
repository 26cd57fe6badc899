package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

// settings loads the config file with environment overrides applied.
func settings() (*Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyEnv(cfg)
	if workspaceID != "" {
		cfg.Default.WorkspaceID = workspaceID
	}
	if cfg.Default.BaseURL == "" {
		cfg.Default.BaseURL = adafri.DefaultBaseURL
	}
	return cfg, nil
}

// openSession builds a session that talks REST only. The socket is opened by
// commands that need it through Session.Login.
func openSession(opts ...adafri.SessionOption) (*adafri.Session, *Config, error) {
	cfg, err := settings()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Auth.Token == "" {
		return nil, nil, errors.New("no access token. Run 'adafri init <token>' first")
	}

	client := adafri.NewClient(cfg.Auth.Token,
		adafri.WithBaseURL(cfg.Default.BaseURL),
		adafri.WithLogger(log),
	)
	opts = append([]adafri.SessionOption{
		adafri.WithSessionLogger(log),
		adafri.WithCurrentUserID(cfg.Auth.UserID),
	}, opts...)
	session := adafri.NewSession(client, opts...)
	session.Messages.SetCurrentUser(cfg.Auth.UserID)
	return session, cfg, nil
}

func requireWorkspace(cfg *Config) (string, error) {
	if cfg.Default.WorkspaceID == "" {
		return "", errors.New("no workspace selected. Pass --workspace or run 'adafri workspaces use <id>'")
	}
	return cfg.Default.WorkspaceID, nil
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// storeErr turns the last recorded store failure into an error.
func storeErr(lastError string) error {
	if lastError == "" {
		return nil
	}
	return errors.New(lastError)
}

// ── Conversation flags ───────────────────────────────────

type conversationFlags struct {
	channel string
	dm      string
}

func (f *conversationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.channel, "channel", "c", "", "channel id")
	cmd.Flags().StringVar(&f.dm, "dm", "", "direct message id")
}

func (f *conversationFlags) conversation() (adafri.Conversation, error) {
	switch {
	case f.channel != "" && f.dm != "":
		return adafri.Conversation{}, errors.New("use either --channel or --dm, not both")
	case f.channel != "":
		return adafri.ChannelConversation(f.channel), nil
	case f.dm != "":
		return adafri.DirectConversation(f.dm), nil
	}
	return adafri.Conversation{}, errors.New("--channel or --dm is required")
}

// selectConversation opens conv in the channel store so sends target it.
func selectConversation(ctx context.Context, s *adafri.Session, wid string, conv adafri.Conversation) {
	s.Workspaces.SelectWorkspace(ctx, wid)
	if conv.Kind == adafri.KindDirect {
		s.Channels.SelectDirectMessage(ctx, wid, conv.ID)
		return
	}
	s.Channels.SelectChannel(ctx, wid, conv.ID)
}

// ── Output ───────────────────────────────────────────────

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMessage(m adafri.Message, indent string) {
	fmt.Print(formatMessage(m, indent))
}

func formatMessage(m adafri.Message, indent string) string {
	var b strings.Builder
	content := m.Content
	switch {
	case m.IsDeleted:
		content = "(deleted)"
	case m.IsEdited:
		content += " (edited)"
	}
	fmt.Fprintf(&b, "%s[%s] %s %s: %s\n", indent, humanize.Time(m.CreatedAt), m.ID, m.Sender.Name(), content)
	for _, a := range m.Attachments {
		fmt.Fprintf(&b, "%s    📎 %s (%s)\n", indent, a.FileName, humanize.Bytes(uint64(a.Size)))
	}
	if len(m.Reactions) > 0 {
		parts := make([]string, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			parts = append(parts, fmt.Sprintf("%s %d", r.Emoji, r.Count))
		}
		fmt.Fprintf(&b, "%s    %s\n", indent, strings.Join(parts, "  "))
	}
	if m.HasThread {
		fmt.Fprintf(&b, "%s    %s\n", indent, english.Plural(m.ThreadCount, "reply", "replies"))
	}
	return b.String()
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

// maskToken shows the first 8 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 16 {
		return "****"
	}
	return token[:8] + "..." + token[len(token)-4:]
}
