package cli

import (
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the slot scheduler and the operator HTTP surface",
		Long: `Start the long-lived relay: a pass runs at every slot boundary in the
configured timezone, and the control server answers /health, /runs/force,
/deliveries/failed and /deliveries/requeue. SIGINT or SIGTERM stops both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := rootOpts.openApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Serve(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "serve", err)
			}
			return nil
		},
	}
}
