package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/ideascout/pkg/research"
)

var researchProfile string

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Research a business idea once and print the result",
	Long: `Run one research request and print the result. The market profile prints
a narrative; the competitors and opportunities profiles print indented JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().StringVar(&researchProfile, "profile", "", "research profile (market, competitors, opportunities)")
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	var opts []research.RunOption
	if researchProfile != "" {
		profile, err := research.ProfileByName(researchProfile)
		if err != nil {
			return err
		}
		opts = append(opts, research.WithProfile(profile))
	}

	res, err := a.orchestrator.Research(ctx, strings.Join(args, " "), opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Payload == nil {
		fmt.Fprintln(out, res.Text)
		return nil
	}

	data, err := json.MarshalIndent(res.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
