package cli

import (
	"context"
	"fmt"

	"github.com/harun/hwdesk/pkg/api"
	"github.com/spf13/cobra"
)

var (
	profileName     string
	profilePassword string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change your display name or password",
	Args:  cobra.NoArgs,
	RunE:  withApp(runProfileUpdate),
}

func init() {
	profileUpdateCmd.Flags().StringVar(&profileName, "name", "", "new display name")
	profileUpdateCmd.Flags().StringVar(&profilePassword, "password", "", "new password")

	profileCmd.AddCommand(profileUpdateCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileUpdate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	var update api.ProfileUpdate
	if cmd.Flags().Changed("name") {
		update.Name = &profileName
	}
	if cmd.Flags().Changed("password") {
		update.Password = &profilePassword
	}
	if update.Name == nil && update.Password == nil {
		return fmt.Errorf("nothing to update, pass --name and/or --password")
	}

	if _, err := a.enter(ctx, "/profile"); err != nil {
		return err
	}
	user, err := a.api.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, user, func() error {
		fmt.Fprintf(out, "Profile updated: %s (%s)\n", orDash(user.Name), user.Username)
		return nil
	})
}
