package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	messagesTarget conversationFlags
	messagesLimit  int
	messagesOlder  int

	sendTarget conversationFlags
	sendFiles  []string

	threadTarget conversationFlags
	threadReply  string

	reactRemove bool
)

func init() {
	messagesTarget.register(messagesCmd)
	messagesCmd.Flags().IntVarP(&messagesLimit, "limit", "n", adafri.DefaultPageSize, "messages per page")
	messagesCmd.Flags().IntVar(&messagesOlder, "older", 0, "also load this many older pages")

	sendTarget.register(sendCmd)
	sendCmd.Flags().StringSliceVarP(&sendFiles, "file", "f", nil, "attach a file (repeatable)")

	threadTarget.register(threadCmd)
	threadCmd.Flags().StringVar(&threadReply, "reply", "", "post a reply to the thread")

	reactCmd.Flags().BoolVar(&reactRemove, "remove", false, "remove the reaction instead of adding it")

	rootCmd.AddCommand(messagesCmd, sendCmd, threadCmd, reactCmd, editCmd, deleteCmd, searchCmd)
}

// ============================================================================
// messages
// ============================================================================

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Show the latest messages in a channel or DM",
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := messagesTarget.conversation()
		if err != nil {
			return err
		}
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(30 * time.Second)
		defer cancel()

		if conv.Kind == adafri.KindDirect {
			session.Messages.FetchDirectMessages(ctx, wid, conv.ID, messagesLimit)
		} else {
			session.Messages.FetchChannelMessages(ctx, wid, conv.ID, messagesLimit)
		}
		for i := 0; i < messagesOlder && session.Messages.HasMore(wid, conv); i++ {
			session.Messages.FetchOlderMessages(ctx, wid, conv, messagesLimit)
		}
		if err := storeErr(session.Messages.LastError()); err != nil {
			return err
		}

		list := session.Messages.Messages(wid, conv)
		if jsonOutput {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No messages found.")
			return nil
		}
		// Oldest first reads naturally in a terminal.
		for i := len(list) - 1; i >= 0; i-- {
			printMessage(list[i], "")
		}
		if session.Messages.HasMore(wid, conv) {
			fmt.Println("  ... older messages available (--older)")
		}
		return nil
	},
}

// ============================================================================
// send
// ============================================================================

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a message to a channel or DM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := sendTarget.conversation()
		if err != nil {
			return err
		}
		uploads, err := readUploads(sendFiles)
		if err != nil {
			return err
		}
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(60 * time.Second)
		defer cancel()

		selectConversation(ctx, session, wid, conv)
		msg, err := session.Messages.SendMessage(ctx, wid, args[0], uploads...)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(msg)
		}
		fmt.Printf("Message sent to %s\n", conv)
		fmt.Printf("  Message ID: %s\n", msg.ID)
		fmt.Printf("  Content:    %s\n", msg.Content)
		return nil
	},
}

func readUploads(paths []string) ([]adafri.Upload, error) {
	uploads := make([]adafri.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", p, err)
		}
		uploads = append(uploads, adafri.Upload{FileName: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

// ============================================================================
// thread
// ============================================================================

var threadCmd = &cobra.Command{
	Use:   "thread <message-id>",
	Short: "Show a thread, optionally replying to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID := args[0]
		session, cfg, err := openSession()
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(30 * time.Second)
		defer cancel()

		session.Messages.SetActiveThread(ctx, wid, parentID)
		session.Messages.FetchThreadMessages(ctx, wid, parentID)
		if err := storeErr(session.Messages.LastError()); err != nil {
			return err
		}

		if threadReply != "" {
			conv, err := threadTarget.conversation()
			if err != nil {
				return err
			}
			selectConversation(ctx, session, wid, conv)
			if _, err := session.Messages.SendThreadMessage(ctx, wid, parentID, threadReply); err != nil {
				return err
			}
		}

		thread, ok := session.Messages.Thread(wid, parentID)
		if !ok {
			return fmt.Errorf("thread %s not found", parentID)
		}
		if jsonOutput {
			return printJSON(thread)
		}
		printMessage(thread.ParentMessage, "")
		for _, m := range thread.Messages {
			printMessage(m, "  ↳ ")
		}
		return nil
	},
}

// ============================================================================
// react / edit / delete
// ============================================================================

var reactCmd = &cobra.Command{
	Use:   "react <message-id> <emoji>",
	Short: "Add or remove a reaction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _, err := openSession()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		if reactRemove {
			if err := session.Messages.RemoveReaction(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Removed %s from %s\n", args[1], args[0])
			return nil
		}
		if err := session.Messages.AddReaction(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Reacted %s to %s\n", args[1], args[0])
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <message-id> <content>",
	Short: "Edit one of your messages",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _, err := openSession()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		msg, err := session.Messages.UpdateMessage(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(msg)
		}
		fmt.Printf("Message %s updated\n", msg.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _, err := openSession()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(15 * time.Second)
		defer cancel()

		if err := session.Messages.DeleteMessage(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Message %s deleted\n", args[0])
		return nil
	},
}

// ============================================================================
// search
// ============================================================================

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search messages in the workspace",
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
		ctx, cancel := commandContext(30 * time.Second)
		defer cancel()

		results, err := session.Messages.SearchMessages(ctx, wid, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, m := range results {
			conv, _ := m.Conversation()
			fmt.Printf("%s  ", conv)
			printMessage(m, "")
		}
		return nil
	},
}
