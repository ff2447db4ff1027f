package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Deirdris/react-chat/internal/chat"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <peer-id>",
		Short: "Print the conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			viewer, err := rt.requireViewer()
			if err != nil {
				return err
			}

			conv, err := rt.roster.Open(ctx, viewer, args[0])
			if err != nil {
				return err
			}

			view, err := chat.NewView(chat.ViewConfig{
				Store:           rt.store,
				ConversationID:  conv.ID,
				ViewerID:        viewer,
				InitialPageSize: rt.cfg.Chat.InitialPageSize,
				OlderPageSize:   rt.cfg.Chat.OlderPageSize,
			})
			if err != nil {
				return err
			}
			if err := view.InitialLoad(ctx); err != nil {
				return err
			}

			pages, _ := cmd.Flags().GetInt("pages")
			for i := 0; i < pages && view.HasMoreHistory(); i++ {
				if err := view.LoadOlder(ctx); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, item := range view.Items() {
				switch item.Kind {
				case chat.ItemDaySeparator:
					if item.HasDate {
						fmt.Fprintf(out, "---- %s ----\n", item.Date.Format("Mon, Jan 2 2006"))
					} else {
						fmt.Fprintln(out, "---- sending ----")
					}
				case chat.ItemMessage:
					prefix := "  "
					if item.Outgoing {
						prefix = "> "
					}
					if item.ShowTimestamp {
						if t, ok := item.Message.CreatedAt.Time(); ok {
							fmt.Fprintf(out, "%s[%s]\n", prefix, t.Local().Format(time.Kitchen))
						}
					}
					line := fmt.Sprintf("%s%s", prefix, item.Message.Text)
					if item.ShowRead {
						line += "  ✓ read"
					}
					fmt.Fprintln(out, line)
				}
			}
			return nil
		}),
	}
	cmd.Flags().Int("pages", 0, "Extra pages of history to fetch")
	return cmd
}
