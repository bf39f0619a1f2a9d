package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/justapithecus/embedset/embedset"
)

func (a *app) waitCmd() *cobra.Command {
	var (
		timeout  time.Duration
		interval time.Duration
		save     saveFlags
	)

	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Wait for an embed job to finish and optionally save its output",
		Long: `Poll an embed job until it is complete, failed, or cancelled.

With --out or --s3-key the result dataset of a complete job is saved.

Examples:
  embedset wait job-123
  embedset wait job-123 --timeout 30m --interval 30s
  embedset wait job-123 --out embeddings.csv --format csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := embedset.WaitOptions{Timeout: a.cfg.Wait.Timeout, Interval: a.cfg.Wait.Interval}
			if cmd.Flags().Changed("timeout") {
				opts.Timeout = timeout
			}
			if cmd.Flags().Changed("interval") {
				opts.Interval = interval
			}

			poller, err := a.poller()
			if err != nil {
				return err
			}
			job, err := poller.Wait(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)

			if job.Status != embedset.JobStatusComplete {
				return fmt.Errorf("job %s ended %s", job.JobID, job.Status)
			}
			if !save.requested() {
				return nil
			}

			ds, ok := job.OutputDataset()
			if !ok {
				return fmt.Errorf("job %s has no output dataset", job.JobID)
			}
			n, dest, err := a.saveDataset(cmd.Context(), ds, save)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d records to %s\n", n, dest)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default from config, 0 waits indefinitely)")
	cmd.Flags().DurationVar(&interval, "interval", embedset.DefaultPollInterval, "time between status checks")
	save.register(cmd)
	return cmd
}
