package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nullwave/polystep/internal/loader"
	"github.com/nullwave/polystep/pkg/api"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "List every discovered step and how it is triggered",
	Args:  cobra.NoArgs,
	RunE:  describeSteps,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func describeSteps(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	steps, discoverErrs := loader.Discover(cfg.StepsDir)
	for _, err := range discoverErrs {
		fmt.Fprintf(cmd.OutOrStderr(), "discover: %v\n", err)
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(steps)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tTRIGGER\tEMITS\tSTREAMS")
	for _, step := range steps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			step.Name(), step.Type, trigger(step), emitList(step), strings.Join(step.Streams(), ","))
	}
	return w.Flush()
}

func trigger(step *api.Step) string {
	switch step.Type {
	case api.StepTypeAPI:
		return fmt.Sprintf("%s %s", step.API.Method, step.API.Path)
	case api.StepTypeEvent:
		return strings.Join(topicsToStrings(step.Event.Subscribes), ",")
	case api.StepTypeCron:
		return step.Cron.CronExpression
	default:
		return "-"
	}
}

func emitList(step *api.Step) string {
	topics := step.Emits()
	if len(topics) == 0 {
		return "-"
	}
	return strings.Join(topicsToStrings(topics), ",")
}

func topicsToStrings(topics []api.Topic) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = string(t)
	}
	return out
}
