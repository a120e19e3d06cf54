package cli

import (
	"fmt"

	"raid-mail-agent/internal/scheduler"
	"raid-mail-agent/pkg/config"

	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var stop bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Register (or stop) Gmail push notifications for the agent mailbox",
		Long: `Register the Gmail watch on the configured Pub/Sub topic. serve does this
on start and renews it; this command is for checking the setup by hand.

Example:
  raid-agent watch
  raid-agent watch --stop`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			if a.transport != transportGmail {
				return NewExitError(ExitCommandError, "watch needs MAIL_TRANSPORT=gmail")
			}
			ctx := commandContext(cmd)

			email, historyID, err := a.gmail.Profile(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "gmail credentials rejected", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mailbox %s at history %d\n", email, historyID)

			if stop {
				if err := a.gmail.Stop(ctx); err != nil {
					return WrapExitError(ExitFailure, "failed to stop watch", err)
				}
				fmt.Fprintln(out, "watch stopped")
				return nil
			}

			renewer := scheduler.NewWatchRenewer(a.gmail, a.repos.Cursors, a.cfg.AgentEmail, a.topicPath(), a.cfg.WatchRenewInterval)
			if err := renewer.Renew(ctx); err != nil {
				return WrapExitError(ExitFailure, "failed to watch mailbox", err)
			}
			fmt.Fprintf(out, "watching on %s\n", a.topicPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&stop, "stop", false, "stop push notifications instead")

	return cmd
}
