package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

var (
	channelsCreatePrivate bool
	channelsCreateDesc    string
)

func init() {
	rootCmd.AddCommand(workspacesCmd)
	workspacesCmd.AddCommand(workspacesListCmd, workspacesUseCmd, workspacesMembersCmd)

	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsListCmd, channelsCreateCmd, channelsArchiveCmd)
	channelsCreateCmd.Flags().BoolVar(&channelsCreatePrivate, "private", false, "create a private channel")
	channelsCreateCmd.Flags().StringVar(&channelsCreateDesc, "description", "", "channel description")

	rootCmd.AddCommand(dmsCmd)
	dmsCmd.AddCommand(dmsListCmd, dmsOpenCmd)
}

// ============================================================================
// workspaces
// ============================================================================

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List and select workspaces",
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workspaces you belong to",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		session.Workspaces.FetchWorkspaces(ctx)
		if err := storeErr(session.Workspaces.LastError()); err != nil {
			return err
		}
		list := session.Workspaces.Workspaces()
		if jsonOutput {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No workspaces found.")
			return nil
		}
		for _, w := range list {
			marker := " "
			if w.ID == cfg.Default.WorkspaceID {
				marker = "*"
			}
			fmt.Printf("%s %s  %s (created %s)\n", marker, w.ID, w.Name, humanize.Time(w.CreatedAt))
		}
		return nil
	},
}

var workspacesUseCmd = &cobra.Command{
	Use:   "use <workspace-id>",
	Short: "Make a workspace the default for other commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Default.WorkspaceID = args[0]
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Default workspace set to %s\n", args[0])
		return nil
	},
}

var workspacesMembersCmd = &cobra.Command{
	Use:   "members",
	Short: "List members of the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		session.Workspaces.FetchMembers(ctx, wid)
		if err := storeErr(session.Workspaces.LastError()); err != nil {
			return err
		}
		members := session.Workspaces.Members(wid)
		if jsonOutput {
			return printJSON(members)
		}
		for _, m := range members {
			fmt.Printf("  %s  %-20s %s\n", m.User.ID, m.User.Name(), m.Role)
		}
		return nil
	},
}

// ============================================================================
// channels
// ============================================================================

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Browse and manage channels",
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List channels in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		session.Channels.FetchChannels(ctx, wid)
		if err := storeErr(session.Channels.LastError()); err != nil {
			return err
		}
		list := session.Channels.Channels(wid)
		if jsonOutput {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No channels found.")
			return nil
		}
		for _, ch := range list {
			var flags []string
			if ch.IsPrivate {
				flags = append(flags, "private")
			}
			if ch.IsArchived {
				flags = append(flags, "archived")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " [" + strings.Join(flags, ", ") + "]"
			}
			fmt.Printf("  %s  #%s%s\n", ch.ID, ch.Name, suffix)
		}
		return nil
	},
}

var channelsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		ch, err := session.Channels.CreateChannel(ctx, &adafri.CreateChannelOptions{
			WorkspaceID: wid,
			Name:        args[0],
			Description: channelsCreateDesc,
			IsPrivate:   channelsCreatePrivate,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(ch)
		}
		fmt.Printf("Channel #%s created (%s)\n", ch.Name, ch.ID)
		return nil
	},
}

var channelsArchiveCmd = &cobra.Command{
	Use:   "archive <channel-id>",
	Short: "Archive a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _, err := openSession()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		if err := session.Channels.ArchiveChannel(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Channel %s archived\n", args[0])
		return nil
	},
}

// ============================================================================
// dms
// ============================================================================

var dmsCmd = &cobra.Command{
	Use:   "dms",
	Short: "Browse and open direct messages",
}

var dmsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List direct message conversations in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		session.Channels.FetchDirectMessages(ctx, wid)
		if err := storeErr(session.Channels.LastError()); err != nil {
			return err
		}
		list := session.Channels.DirectMessages(wid)
		if jsonOutput {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No direct messages found.")
			return nil
		}
		for _, dm := range list {
			fmt.Printf("  %s  %s\n", dm.ID, participants(dm, cfg.Auth.UserID))
		}
		return nil
	},
}

var dmsOpenCmd = &cobra.Command{
	Use:   "open <user-id>",
	Short: "Open (or reuse) a direct message with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		dm, err := session.Channels.CreateDirectMessage(ctx, wid, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(dm)
		}
		fmt.Printf("Direct message %s with %s\n", dm.ID, participants(*dm, cfg.Auth.UserID))
		return nil
	},
}

// participants names everyone in dm except self.
func participants(dm adafri.DirectMessageChannel, self string) string {
	var names []string
	for _, u := range dm.Participants {
		if u.ID != self {
			names = append(names, u.Name())
		}
	}
	if len(names) == 0 {
		for _, id := range dm.ParticipantIDs {
			if id != self {
				names = append(names, id)
			}
		}
	}
	return strings.Join(names, ", ")
}
