package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const lastMessagePreviewWidth = 48

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			viewer, err := rt.requireViewer()
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			entries, err := rt.roster.Conversations(ctx, viewer, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations yet.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				peer := "(unknown)"
				if entry.Peer != nil {
					peer = entry.Peer.DisplayName
				} else if id, ok := entry.Conversation.Peer(viewer); ok {
					peer = id
				}

				preview, when := "", ""
				if last := entry.Conversation.LastMessage; last != nil {
					author := "them"
					if last.AuthorID == viewer {
						author = "you"
					}
					preview = fmt.Sprintf("%s: %s", author, truncate(last.Text, lastMessagePreviewWidth))
					if t, ok := last.CreatedAt.Time(); ok {
						when = t.Local().Format(time.DateTime)
					}
				}
				rows = append(rows, []string{peer, preview, when})
			}
			return writeTable(cmd.OutOrStdout(), []string{"PEER", "LAST MESSAGE", "WHEN"}, rows)
		}),
	}
	cmd.Flags().Int("limit", 0, "Maximum conversations to list")
	return cmd
}
