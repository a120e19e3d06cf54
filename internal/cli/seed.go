package cli

import (
	"fmt"
	"sort"

	"raid-mail-agent/internal/conversation/usecase"
	"raid-mail-agent/pkg/config"
	"raid-mail-agent/pkg/recipients"

	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "seed <recipients.csv>",
		Short: "Send the welcome email to every new recipient",
		Long: `Send the welcome email to each recipient in a CSV file with name and
email columns. Recipients that already have a conversation are skipped.

Example:
  raid-agent seed ./applicants.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := recipients.LoadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load recipients", err)
			}

			a, err := newApp(config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			seeder := usecase.NewSeeder(a.repos, a.mailTransport(), a.agent, a.renderer, a.engineCfg, concurrency)
			report := seeder.Seed(commandContext(cmd), list)
			return printSeedReport(cmd, report)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "welcome emails drafted and sent in parallel")

	return cmd
}

func printSeedReport(cmd *cobra.Command, report *usecase.SeedReport) error {
	out := cmd.OutOrStdout()
	for _, email := range report.Sent {
		fmt.Fprintf(out, "sent     %s\n", email)
	}
	for _, email := range report.Skipped {
		fmt.Fprintf(out, "skipped  %s\n", email)
	}
	failed := make([]string, 0, len(report.Failed))
	for email := range report.Failed {
		failed = append(failed, email)
	}
	sort.Strings(failed)
	for _, email := range failed {
		fmt.Fprintf(out, "failed   %s: %v\n", email, report.Failed[email])
	}
	fmt.Fprintf(out, "%d sent, %d skipped, %d failed\n", len(report.Sent), len(report.Skipped), len(failed))

	if len(failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d welcome emails failed", len(failed)))
	}
	return nil
}
