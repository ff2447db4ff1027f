package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Deirdris/react-chat/internal/logging"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer-id> <text>...",
		Short: "Send a message to a user",
		Args:  cobra.MinimumNArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			viewer, err := rt.requireViewer()
			if err != nil {
				return err
			}

			text := strings.Join(args[1:], " ")
			if strings.TrimSpace(text) == "" {
				// Nothing to send; mirrors the composer dropping blank input.
				return nil
			}

			conv, err := rt.roster.Open(ctx, viewer, args[0])
			if err != nil {
				return err
			}
			msg, err := rt.store.Append(ctx, conv.ID, viewer, text)
			if err != nil {
				return err
			}
			logger := logging.FromContext(ctx)
			logger.Debug().
				Str("conversation_id", conv.ID).
				Str("message_id", msg.ID).
				Msg("Message sent")
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", msg.ID)
			return nil
		}),
	}
}
