package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSignInCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signin <user-id>",
		Short: "Register or refresh a user profile",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			photo, _ := cmd.Flags().GetString("photo")

			user, err := rt.roster.SignIn(ctx, args[0], name, photo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.DisplayName, user.ID)
			return nil
		}),
	}
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("photo", "", "Photo URL")
	return cmd
}
