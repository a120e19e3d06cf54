package cli

import (
	"errors"
	"fmt"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/config"

	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <thread-id>",
		Short: "Move a failed thread back to its last good step and run it",
		Long: `Reset a failed thread to the status it failed from, keeping any reply
that was claimed but not delivered, then process it once.

Example:
  raid-agent reset 18c4f2a9b7e3d001`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := commandContext(cmd)
			wf, err := a.engine.Reset(ctx, args[0])
			switch {
			case errors.Is(err, domain.ErrWorkflowNotFound):
				return WrapExitError(ExitCommandError, "unknown thread", err)
			case errors.Is(err, domain.ErrInvalidTransition):
				return WrapExitError(ExitCommandError, "thread is not failed", err)
			case err != nil:
				return WrapExitError(ExitFailure, "reset failed", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s reset to step %d (%s)\n", wf.ThreadID, wf.Step, wf.Status)

			wf, err = a.engine.Process(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "processing failed", err)
			}
			if wf != nil {
				fmt.Fprintf(out, "%s now at step %d (%s)\n", wf.ThreadID, wf.Step, wf.Status)
			}
			return nil
		},
	}

	return cmd
}
