package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/config"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/livefeed"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/notify"
)

func watchCmd() *cobra.Command {
	var (
		ticketID int64
		after    int64
		format   string
		noStream bool
		ack      bool
	)

	cmd := &cobra.Command{
		Use:   "watch notifications|comments|chat",
		Short: "Follow a feed until interrupted",
		Long: `Follow one helpdesk feed and print every new item once.

The feed is streamed over Server-Sent Events (or a websocket when the
stream path is a ws:// URL). When the stream cannot be opened the
command falls back to polling for the rest of the session.

Examples:
  # Follow your notifications
  livefeed watch notifications

  # Follow notifications and mark each one read once shown
  livefeed watch notifications --ack

  # Follow the comment thread of ticket 42
  livefeed watch comments --ticket 42

  # Follow a chat as JSON lines, skipping history up to message 100
  livefeed watch chat --ticket 42 --after 100 --format jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			name := config.FeedName(args[0])
			feedCfg, err := cfg.Feed(name)
			if err != nil {
				return err
			}
			if name.NeedsTicket() && ticketID <= 0 {
				return fmt.Errorf("feed %s requires --ticket", name)
			}
			if after < 0 {
				return fmt.Errorf("--after must be >= 0")
			}
			if ack && name != config.FeedNotifications {
				return fmt.Errorf("--ack only applies to the notifications feed")
			}

			out, err := newItemWriter(os.Stdout, format, name)
			if err != nil {
				return err
			}

			client, err := newClient()
			if err != nil {
				return err
			}

			streaming := cfg.Streaming
			if noStream {
				streaming.Enabled = false
			}

			s, err := livefeed.New(feedCfg.Resolve(name, ticketID, after, streaming), client, livefeed.WithLogger(logger))
			if err != nil {
				return err
			}
			s.OnItems(out.Write)

			var view *notificationView
			if name == config.FeedNotifications {
				var a acker
				if ack {
					a = client
				}
				view = newNotifications(ctx, a)
				view.attach(s, cfg.Notify.Bell)
			}

			if err := s.Start(ctx); err != nil {
				return err
			}
			defer func() {
				s.Stop()
				if view != nil {
					view.summary()
					view.wait(forwardTimeout)
				}
			}()

			logger.Info("watching feed",
				zap.String("feed", string(name)),
				zap.Int64("ticket", ticketID),
				zap.String("transport", string(s.Transport())),
			)

			<-ctx.Done()

			stats := s.Stats()
			logger.Info("watch stopped",
				zap.Int64("last_seen_id", s.LastSeenID()),
				zap.Uint64("batches", stats.Batches),
				zap.Uint64("delivered", stats.Delivered),
				zap.Uint64("filtered", stats.Filtered),
				zap.Uint64("malformed", stats.Malformed),
				zap.Uint64("network_failures", stats.NetworkFailures),
			)
			return nil
		},
	}

	cmd.Flags().Int64Var(&ticketID, "ticket", 0, "ticket id (comments and chat)")
	cmd.Flags().Int64Var(&after, "after", 0, "treat ids up to this one as already seen")
	cmd.Flags().StringVar(&format, "format", formatText, "output format (text, jsonl)")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "poll only")
	cmd.Flags().BoolVar(&ack, "ack", false, "mark notifications read as they are shown")

	return cmd
}

// newNotifications builds the view for the notification feed from the
// notify section. ack is nil unless acknowledging is requested.
func newNotifications(ctx context.Context, ack acker) *notificationView {
	forward := notify.New(&notify.Config{
		Enabled:  cfg.Notify.Ntfy.Enabled,
		Server:   cfg.Notify.Ntfy.Server,
		Topic:    cfg.Notify.Ntfy.Topic,
		Priority: cfg.Notify.Ntfy.Priority,
		Tags:     cfg.Notify.Ntfy.Tags,
		Token:    cfg.Notify.Ntfy.Token,
		LinkBase: cfg.Server.BaseURL,
	}, logger)
	return newNotificationView(ctx, notify.NewTray(cfg.Notify.TraySize), forward, ack, os.Stderr, logger)
}
