package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/hwdesk/internal/logger"
	"github.com/harun/hwdesk/pkg/mockserver"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	mockAddr  string
	mockEmpty bool
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run a local homework backend with demo data",
	Long: `Run a homework backend that speaks the same protocol as the real one.
It is seeded with demo students (password 123456), classes, assignments and
submissions. Point api.base_url at it to try hwdesk without a school server.`,
	Args: cobra.NoArgs,
	RunE: runMockServer,
}

func init() {
	mockServerCmd.Flags().StringVar(&mockAddr, "addr", "", "listen address (default from config)")
	mockServerCmd.Flags().BoolVar(&mockEmpty, "empty", false, "start without demo data")
	rootCmd.AddCommand(mockServerCmd)
}

func runMockServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()

	addr := cfg.Mock.Addr
	if mockAddr != "" {
		addr = mockAddr
	}

	srv, err := mockserver.New(mockserver.Config{
		Addr:               addr,
		Secret:             cfg.Mock.Secret,
		TokenTTL:           cfg.Mock.TokenTTL,
		RateLimitPerMinute: cfg.Mock.RateLimitPerMinute,
		Empty:              mockEmpty,
	}, log.Logger.With().Str("component", "mock").Logger())
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Mock backend listening on %s\n", addr)

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}
