package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/api"
)

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Manage notification read state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "read ID",
		Short: "Mark one notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := api.ParseID(args[0])
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.MarkRead(cmd.Context(), id); err != nil {
				return err
			}
			logger.Info("notification marked read", zap.Int64("id", id))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.MarkAllRead(cmd.Context()); err != nil {
				return err
			}
			logger.Info("all notifications marked read")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seen",
		Short: "Mark every notification seen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.MarkSeen(cmd.Context()); err != nil {
				return err
			}
			logger.Info("notifications marked seen")
			return nil
		},
	})

	return cmd
}

func reactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "react TICKET COMMENT EMOJI",
		Short: "Toggle your reaction on a comment",
		Long: `Toggle an emoji reaction on a ticket comment and print the new counts.

Examples:
  livefeed react 42 1007 👍`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, commentID, err := parseCommentArgs(args)
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			counts, err := client.React(cmd.Context(), ticketID, commentID, args[2])
			if err != nil {
				return err
			}
			fmt.Println(formatCounts(counts))
			return nil
		},
	}
}

func reactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactions TICKET COMMENT",
		Short: "Show reaction counts of a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, commentID, err := parseCommentArgs(args)
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			counts, err := client.Reactions(cmd.Context(), ticketID, commentID)
			if err != nil {
				return err
			}
			fmt.Println(formatCounts(counts))
			return nil
		},
	}
}

func parseCommentArgs(args []string) (int64, int64, error) {
	ticketID, err := api.ParseID(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("ticket: %w", err)
	}
	commentID, err := api.ParseID(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("comment: %w", err)
	}
	return ticketID, commentID, nil
}

// formatCounts prints counts sorted by emoji, e.g. "👍 2  🎉 1".
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "no reactions"
	}
	emojis := make([]string, 0, len(counts))
	for e := range counts {
		emojis = append(emojis, e)
	}
	sort.Strings(emojis)

	parts := make([]string, len(emojis))
	for i, e := range emojis {
		parts[i] = fmt.Sprintf("%s %d", e, counts[e])
	}
	return strings.Join(parts, "  ")
}
