package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

var (
	watchTarget      conversationFlags
	watchMetricsAddr string
	watchReconnect   bool
)

func init() {
	watchTarget.register(watchCmd)
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")
	watchCmd.Flags().BoolVar(&watchReconnect, "reconnect", true, "reconnect automatically when the socket drops")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live activity in a channel or DM",
	Long:  "Connect to the realtime socket, open a channel or DM and print messages, edits, reactions and typing as they happen. Stop with Ctrl-C.",
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := watchTarget.conversation()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics := adafri.NewMetrics(reg)

		session, cfg, err := openSession(
			adafri.WithSessionMetrics(metrics),
			adafri.WithRealtimeConfig(&adafri.RealtimeConfig{AutoReconnect: watchReconnect}),
		)
		if err != nil {
			return err
		}
		wid, err := requireWorkspace(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if watchMetricsAddr != "" {
			srv := serveMetrics(watchMetricsAddr, reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if err := session.Login(ctx, cfg.Auth.Token); err != nil {
			return err
		}
		defer func() {
			if err := session.Logout(context.Background()); err != nil {
				log.Warn("logout", zap.Error(err))
			}
		}()

		w := &watcher{session: session, workspaceID: wid, conv: conv}
		for _, t := range adafri.EventTypes {
			session.Conn.On(t, w.handle)
		}
		session.Conn.OnReconnected(func() {
			log.Info("reconnected; reloading latest page")
			w.load(context.Background())
		})

		selectConversation(ctx, session, wid, conv)
		w.load(ctx)
		if err := storeErr(session.Messages.LastError()); err != nil {
			return err
		}
		for _, m := range reversed(session.Messages.Messages(wid, conv)) {
			printMessage(m, "")
		}
		fmt.Printf("── watching %s in %s (Ctrl-C to stop) ──\n", conv, wid)

		<-ctx.Done()
		return nil
	},
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// watcher applies events to the stores, then prints the ones in its conversation.
type watcher struct {
	session     *adafri.Session
	workspaceID string
	conv        adafri.Conversation
}

func (w *watcher) load(ctx context.Context) {
	if w.conv.Kind == adafri.KindDirect {
		w.session.Messages.FetchDirectMessages(ctx, w.workspaceID, w.conv.ID, 20)
		return
	}
	w.session.Messages.FetchChannelMessages(ctx, w.workspaceID, w.conv.ID, 20)
}

func (w *watcher) handle(ev adafri.Event) {
	w.session.Messages.HandleEvent(ev)

	switch e := ev.(type) {
	case adafri.NewMessageEvent:
		if w.mine(e.Message) {
			printMessage(e.Message, "")
		}
	case adafri.MessageUpdateEvent:
		if w.mine(e.Message) {
			printMessage(e.Message, "✎ ")
		}
	case adafri.MessageDeleteEvent:
		if e.WorkspaceID == w.workspaceID {
			fmt.Printf("✗ %s deleted\n", e.MessageID)
		}
	case adafri.NewThreadMessageEvent:
		if e.Message.WorkspaceID == w.workspaceID {
			printMessage(e.Message, "  ↳ ")
		}
	case adafri.ReactionUpdateEvent:
		if e.WorkspaceID == w.workspaceID {
			parts := make([]string, 0, len(e.Reactions))
			for _, r := range e.Reactions {
				parts = append(parts, fmt.Sprintf("%s %d", r.Emoji, r.Count))
			}
			fmt.Printf("☺ %s: %s\n", e.MessageID, strings.Join(parts, "  "))
		}
	case adafri.TypingStartEvent, adafri.TypingStopEvent:
		users := w.session.Typing.Users(w.workspaceID, w.conv)
		if len(users) > 0 {
			fmt.Printf("… %s typing\n", strings.Join(users, ", "))
		}
	}
}

func (w *watcher) mine(m adafri.Message) bool {
	conv, ok := m.Conversation()
	return ok && m.WorkspaceID == w.workspaceID && conv == w.conv
}

func reversed(list []adafri.Message) []adafri.Message {
	out := make([]adafri.Message, len(list))
	for i, m := range list {
		out[len(list)-1-i] = m
	}
	return out
}
