package cli

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"NewsRelay/internal/control"
)

// HealthOptions holds flags for the health command.
type HealthOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HealthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print the health of a running relay",
		Long: `Query the control server of a running "newsrelay serve" and print its
health as JSON. Exits 1 when the relay reports itself degraded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := opts.Addr
			if addr == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				addr = cfg.Control.Addr
			}

			h, err := control.NewClient(addr, opts.Timeout).Health(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "query health", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(h); err != nil {
				return err
			}
			if h.Status != "ok" {
				return WrapExitError(ExitFailure, "relay degraded", errors.New(h.Status))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "control server address (default control.addr from config)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")

	return cmd
}
