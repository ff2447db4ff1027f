package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Deirdris/react-chat/internal/tui"
)

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <peer-id>",
		Short: "Open the interactive conversation screen",
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

			peerName := args[0]
			if peer, err := rt.roster.Profile(ctx, args[0]); err == nil {
				peerName = peer.DisplayName
			}

			return tui.Run(tui.Config{
				Store:           rt.store,
				ConversationID:  conv.ID,
				ViewerID:        viewer,
				PeerName:        peerName,
				InitialPageSize: rt.cfg.Chat.InitialPageSize,
				OlderPageSize:   rt.cfg.Chat.OlderPageSize,
			})
		}),
	}
}
