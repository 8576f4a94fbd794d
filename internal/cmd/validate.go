package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nullwave/polystep/internal/loader"
	"github.com/nullwave/polystep/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Discover steps and report duplicate names or orphan topics without starting the host",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	steps, discoverErrs := loader.Discover(cfg.StepsDir)
	for _, err := range discoverErrs {
		fmt.Fprintf(cmd.OutOrStderr(), "discover: %v\n", err)
	}

	report := registry.Validate(steps, cfg.ExternalTopics)
	fmt.Fprintln(cmd.OutOrStdout(), report.String())

	if len(discoverErrs) > 0 || !report.OK() {
		os.Exit(1)
	}
	return nil
}
