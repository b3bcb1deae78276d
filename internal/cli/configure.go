package cli

import (
	"fmt"

	"github.com/harun/hwdesk/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"configure"},
	Short:   "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up hwdesk.
The wizard asks for the backend address, the login field and where the
saved login is kept, then writes the config file.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	current, err := loader.Load()
	if err != nil {
		current = nil
	}

	wizard := config.NewWizardIO(cmd.InOrStdin(), cmd.OutOrStdout())
	cfg, err := wizard.Run(current)
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "You can now log in with: hwdesk login <username>")

	return nil
}
