package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/ideascout/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"configure"},
	Short:   "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up IdeaScout.
The wizard will guide you through configuring the model provider, API keys and
the default research profile.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	wizard := config.NewWizard(cmd.InOrStdin(), out)

	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "\nYou can now start IdeaScout with: ideascout serve")

	return nil
}
