package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find users by display name",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			users, err := rt.roster.Search(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users found.")
				return nil
			}

			rows := make([][]string, 0, len(users))
			for _, user := range users {
				rows = append(rows, []string{user.ID, user.DisplayName})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "NAME"}, rows)
		}),
	}
	cmd.Flags().Int("limit", 20, "Maximum users to return")
	return cmd
}
