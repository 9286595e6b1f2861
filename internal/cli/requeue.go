package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"NewsRelay/internal/domain"
)

// RequeueOptions holds flags for the requeue command.
type RequeueOptions struct {
	*RootOptions
	Title string
	Date  string
}

// NewRequeueCommand creates the requeue command.
func NewRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequeueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Forget a failed delivery so a later run may resend it",
		Long: `Remove a failed delivery record. Only records in the failed state are
removed; sent and attempted records are left alone.

Example:
  newsrelay requeue --title "Storm floods northern coast villages" --date 2025-06-10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, cfg, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			date := opts.Date
			if date == "" {
				date = time.Now().In(cfg.Location()).Format(domain.DateLayout)
			}
			removed, err := application.Pipeline().Requeue(cmd.Context(), opts.Title, date)
			if err != nil {
				return WrapExitError(ExitCommandError, "requeue", err)
			}
			if !removed {
				return WrapExitError(ExitFailure, "requeue", fmt.Errorf("no failed delivery for %q on %s", opts.Title, date))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %q (%s)\n", opts.Title, date)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "headline of the failed delivery (required)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "posted date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}
