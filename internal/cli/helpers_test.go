package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/hwdesk/pkg/mockserver"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// resetFlags puts every flag of the command tree back to its default, since
// the commands are package level and keep state between Execute calls.
func resetFlags(t *testing.T) {
	t.Helper()
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		reset := func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

// startBackend serves a seeded mock backend signing tokens with secret
func startBackend(t *testing.T, secret string) string {
	t.Helper()
	backend, err := mockserver.New(mockserver.Config{Secret: secret, PasswordCost: bcrypt.MinCost}, zerolog.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = backend.Stop(context.Background())
	})
	return ts.URL
}

// writeConfig writes a config file for baseURL into a fresh data directory
func writeConfig(t *testing.T, dir, baseURL, extra string) string {
	t.Helper()
	if extra != "" {
		extra = ",\n" + extra
	}
	content := fmt.Sprintf(`{
		"api": {"base_url": %q, "timeout": "2s"},
		"store": {"backend": "file"},
		"logging": {"level": "debug"},
		"metrics": {"addr": "off"}%s
	}`, baseURL, extra)
	path := filepath.Join(dir, "hwdesk.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the CLI with args against the config at cfgPath
func run(t *testing.T, cfgPath, stdin string, args ...string) result {
	t.Helper()
	resetFlags(t)

	cmd := GetRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := cmd.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}
