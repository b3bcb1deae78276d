package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved login",
	Long: `Show whether a login is saved, who it belongs to and when it expires.
Nothing is sent to the server; the token's own claims are decoded without
verifying the signature.`,
	Args: cobra.NoArgs,
	RunE: withApp(runStatus),
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// sessionStatus is the --json form of `status`
type sessionStatus struct {
	LoggedIn      bool       `json:"loggedIn"`
	Expired       bool       `json:"expired"`
	Username      string     `json:"username,omitempty"`
	Name          string     `json:"name,omitempty"`
	StudentID     string     `json:"studentId,omitempty"`
	IssuedAt      *time.Time `json:"issuedAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	ServerExpiry  *time.Time `json:"serverExpiry,omitempty"`
	TokenIssuer   string     `json:"tokenIssuer,omitempty"`
	StoreBackend  string     `json:"storeBackend"`
	RestoreResult string     `json:"restore"`
}

func runStatus(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	s := a.sessions.Snapshot()
	st := sessionStatus{
		LoggedIn:      s.Authenticated(),
		Username:      s.Username,
		Name:          s.DisplayName,
		StudentID:     s.StudentID,
		StoreBackend:  a.cfg.Store.Backend,
		RestoreResult: a.restored.String(),
	}
	if s.Authenticated() {
		st.Expired = a.sessions.IsExpired()
		if s.TokenIssuedAt > 0 {
			t := time.UnixMilli(s.TokenIssuedAt)
			st.IssuedAt = &t
		}
		if exp := s.ExpiresAt(); !exp.IsZero() {
			st.ExpiresAt = &exp
		}
		if claims, ok := tokenClaims(s.Token); ok {
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				t := exp.Time
				st.ServerExpiry = &t
			}
			if iss, err := claims.GetIssuer(); err == nil {
				st.TokenIssuer = iss
			}
		}
	}

	out := cmd.OutOrStdout()
	return render(out, st, func() error {
		if !st.LoggedIn {
			fmt.Fprintln(out, "Status: logged out")
			fmt.Fprintf(out, "Store: %s\n", st.StoreBackend)
			return nil
		}

		state := "logged in"
		if st.Expired {
			state = "expired"
		}
		fmt.Fprintf(out, "Status: %s\n", state)
		fmt.Fprintf(out, "User: %s (%s)\n", orDash(st.Name), st.Username)
		if st.StudentID != "" {
			fmt.Fprintf(out, "Student ID: %s\n", st.StudentID)
		}
		if st.ExpiresAt != nil {
			fmt.Fprintf(out, "Expires: %s", st.ExpiresAt.Format(time.RFC3339))
			if remaining := time.Until(*st.ExpiresAt); remaining > 0 {
				fmt.Fprintf(out, " (in %s)", formatDuration(remaining))
			}
			fmt.Fprintln(out)
		} else {
			fmt.Fprintf(out, "Expires: never recorded (policy: %s)\n", a.cfg.Session.MissingExpiry)
		}
		if st.ServerExpiry != nil {
			fmt.Fprintf(out, "Server token expiry: %s\n", st.ServerExpiry.Format(time.RFC3339))
		}
		fmt.Fprintf(out, "Store: %s\n", st.StoreBackend)
		return nil
	})
}

// tokenClaims decodes a JWT without checking its signature. Tokens that are
// not JWTs are fine; the server decides what a token looks like.
func tokenClaims(token string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
