package cli

import (
	"github.com/go-kit/log"
	"github.com/spf13/cobra"
	"tapoctl/config"
)

// NewRootCommand builds the single positional command. Flag parsing is off so
// that passwords beginning with '-' reach the dispatcher untouched.
func NewRootCommand(connect Connector, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "tapoctl <username> <password> <device_ip> <action> [<value>]",
		Short: "Control a Tapo colour bulb and print its state",
		Long: `Authenticates to a Tapo colour bulb, performs one action and prints the
resulting state as a line of JSON.

Actions: brightness [1-100], temperature [2501-6500], on, off, toggle, state.`,
		Args:               cobra.MinimumNArgs(config.RequiredArgs),
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			invocation, err := config.ParseInvocation(args)
			if err != nil {
				return err
			}
			return NewDispatcher(connect, cmd.OutOrStdout(), logger).Dispatch(cmd.Context(), invocation)
		},
	}
}
