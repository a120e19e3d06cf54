package cli

import (
	"encoding/json"

	authUsecase "raid-mail-agent/internal/auth/usecase"
	"raid-mail-agent/pkg/config"

	"github.com/spf13/cobra"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <operator>",
		Short: "Issue a bearer token for the operator API",
		Long: `Issue a signed bearer token for the operator API. The token is printed
as JSON and is valid for OPERATOR_TOKEN_TTL.

Example:
  raid-agent token alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			auth, err := authUsecase.NewAuthUsecase(cfg.JWTSecret, cfg.JWTAccessExpiry)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid operator token settings", err)
			}
			resp, err := auth.IssueToken(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to issue token", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	return cmd
}
