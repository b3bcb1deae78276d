package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/harun/hwdesk/internal/observability"
	"github.com/harun/hwdesk/pkg/routing"
	"github.com/harun/hwdesk/pkg/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	watchFor     time.Duration
	watchMetrics string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the saved login fresh and report when it ends",
	Long: `Run in the foreground: expire the saved login on schedule, pick up logins
and logouts made by other hwdesk processes, and serve prometheus metrics.
Only one watcher runs per data directory.`,
	Args: cobra.NoArgs,
	RunE: withApp(runWatch),
}

func init() {
	watchCmd.Flags().DurationVar(&watchFor, "for", 0, "stop after this long (0 runs until interrupted)")
	watchCmd.Flags().StringVar(&watchMetrics, "metrics-addr", "", "metrics listen address (default from config, \"off\" disables)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	pidFile := filepath.Join(a.cfg.DataDir, "watch.pid")
	if isRunning(pidFile) {
		return fmt.Errorf("watcher is already running (PID file: %s)", pidFile)
	}
	if err := writePIDFile(pidFile); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	if watchFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, watchFor)
		defer cancel()
	}

	unsubscribe := a.sessions.OnForceLogout(func(evt session.ForceLogout) {
		fmt.Fprintf(out, "%s  %s\n", evt.At.Format(time.TimeOnly), evt.Notice)
	})
	defer unsubscribe()
	unchange := a.nav.OnChange(func(loc routing.Location) {
		log.Debug().Str("path", loc.Path).Msg("Location changed")
	})
	defer unchange()

	// Start on the landing page so a forced logout moves somewhere visible.
	if _, err := a.enter(ctx, routing.LandingPath); err != nil {
		var loginErr *LoginRequiredError
		if !errors.As(err, &loginErr) {
			return err
		}
		fmt.Fprintln(out, "Not logged in, waiting for a login")
	} else {
		fmt.Fprintf(out, "Watching session of %s\n", a.sessions.Snapshot().Username)
	}

	sweeper := session.NewSweeper(a.sessions, a.cfg.Session.SweepInterval)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	if a.cfg.Store.Backend == "file" {
		watcher, err := session.NewStoreWatcher(a.sessions, a.cfg.Store.Path, a.cfg.Session.WatchDebounce)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	addr := a.cfg.Metrics.Addr
	if watchMetrics != "" {
		addr = watchMetrics
	}
	if addr != "" && addr != "off" {
		srv, bound, err := serveMetrics(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Metrics on http://%s/metrics\n", bound)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	fmt.Fprintln(out, "Watcher stopped")
	return nil
}

// serveMetrics exposes the prometheus registry and returns the bound address
func serveMetrics(addr string) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv, ln.Addr().String(), nil
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func isRunning(pidFile string) bool {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	return process.Signal(syscall.Signal(0)) == nil
}
