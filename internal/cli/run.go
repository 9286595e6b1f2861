package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"NewsRelay/internal/domain"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one scheduled pass for the current slot",
		Long: `Run one scheduled pass for the current slot and exit.

This is the entrypoint for external triggers such as cron. When another
invocation already claimed the slot the command prints a notice and exits 0.

Example:
  newsrelay run --config /etc/newsrelay.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPass(cmd, rootOpts, false)
		},
	}
}

// NewForceCommand creates the force command.
func NewForceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "force",
		Short: "Run one forced pass, ignoring slot uniqueness",
		Long: `Run one forced pass. Forced passes never conflict with the slot claim
of a scheduled pass; deduplication still applies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPass(cmd, rootOpts, true)
		},
	}
}

func runPass(cmd *cobra.Command, opts *RootOptions, forced bool) error {
	application, _, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	report, runErr := application.RunOnce(cmd.Context(), forced)
	printReport(cmd.OutOrStdout(), report)

	switch {
	case runErr != nil:
		return WrapExitError(ExitFailure, "run failed", runErr)
	case !report.Skipped && report.Run.Status == domain.RunFailed:
		return WrapExitError(ExitFailure, "run failed", fmt.Errorf("%s", report.Run.Error))
	}
	return nil
}

func printReport(w io.Writer, report domain.RunReport) {
	run := report.Run
	if report.Skipped {
		fmt.Fprintf(w, "slot already claimed: %s slot %d\n", run.Date, run.Slot)
		return
	}
	fmt.Fprintf(w, "run %s %s: sent %d, failed %d, duplicates %d, stale %d, source failures %d\n",
		run.ID, run.Status, report.Sent, report.Failed, report.Rejected, report.Stale, report.SourceFailures())
}
