package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/harun/hwdesk/pkg/api"
	"github.com/harun/hwdesk/pkg/routing"
	"github.com/spf13/cobra"
)

var (
	loginPassword string
	loginForce    bool

	registerPassword  string
	registerName      string
	registerStudentID string
)

var loginCmd = &cobra.Command{
	Use:   "login <username|studentId>",
	Short: "Log in to the homework backend",
	Long: `Log in with your username, or your student number when api.auth_field is
studentId. The password is read from --password or from the first line of
stdin. The login is saved and reused by later commands.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runLogin),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved login",
	Args:  cobra.NoArgs,
	RunE:  withApp(runLogout),
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runRegister),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in student's profile",
	Long:  `Fetch the profile from the server and refresh the saved copy.`,
	Args:  cobra.NoArgs,
	RunE:  withApp(runWhoami),
}

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (read from stdin when empty)")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "log in again even when a session exists")

	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "password (read from stdin when empty)")
	registerCmd.Flags().StringVar(&registerName, "name", "", "display name")
	registerCmd.Flags().StringVar(&registerStudentID, "student-id", "", "student number")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, whoamiCmd)
}

func runLogin(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	d, _ := a.nav.Navigate(ctx, routing.LoginPath)
	if d.Action == routing.ActionRedirectLanding && !loginForce {
		s := a.sessions.Snapshot()
		fmt.Fprintf(out, "Already logged in as %s. Use --force to log in again or `hwdesk logout` first.\n", s.Username)
		return nil
	}
	if d.Notice != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), d.Notice)
	}

	password, err := readSecret(cmd, loginPassword, "Password: ")
	if err != nil {
		return err
	}

	result, err := a.api.Login(ctx, args[0], password)
	if err != nil {
		return err
	}

	if _, err := a.enter(ctx, routing.LandingPath); err != nil {
		return err
	}

	return render(out, result.UserInfo, func() error {
		fmt.Fprintf(out, "Logged in as %s (%s)\n", orDash(result.UserInfo.Name), result.UserInfo.Username)
		fmt.Fprintf(out, "Session valid until %s\n", a.sessions.Snapshot().ExpiresAt().Format("2006-01-02 15:04"))
		return nil
	})
}

func runLogout(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	was := a.sessions.Snapshot()
	a.api.Logout(ctx)
	if was.Authenticated() {
		fmt.Fprintf(cmd.OutOrStdout(), "Logged out %s\n", was.Username)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
	}
	return nil
}

func runRegister(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	d, _ := a.nav.Navigate(ctx, routing.RegisterPath)
	if d.Action == routing.ActionRedirectLanding {
		return fmt.Errorf("already logged in as %s, run `hwdesk logout` first", a.sessions.Snapshot().Username)
	}

	password, err := readSecret(cmd, registerPassword, "Password: ")
	if err != nil {
		return err
	}

	req := api.RegisterRequest{
		Username:  args[0],
		Password:  password,
		Name:      registerName,
		StudentID: registerStudentID,
	}
	if err := a.api.Register(ctx, req); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run `hwdesk login %s` to continue.\n", req.Username, req.Username)
	return nil
}

func runWhoami(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/profile"); err != nil {
		return err
	}
	user, err := a.api.GetInfo(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, user, func() error {
		return printTable(out, []string{"FIELD", "VALUE"}, [][]string{
			{"User ID", user.UserID},
			{"Username", user.Username},
			{"Name", orDash(user.Name)},
			{"Student ID", orDash(user.StudentID)},
		})
	})
}

// readSecret returns flagValue or, when empty, the first line of stdin
func readSecret(cmd *cobra.Command, flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", fmt.Errorf("password is required")
	}
	return line, nil
}
