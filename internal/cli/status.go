package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justapithecus/embedset/embedset"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current status of an embed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poller, err := a.poller()
			if err != nil {
				return err
			}
			job, err := poller.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

func printJob(w io.Writer, job *embedset.EmbedJob) {
	fmt.Fprintf(w, "job_id:           %s\n", job.JobID)
	fmt.Fprintf(w, "status:           %s\n", job.Status)
	fmt.Fprintf(w, "model:            %s\n", job.Model)
	fmt.Fprintf(w, "truncate:         %s\n", job.Truncate)
	fmt.Fprintf(w, "percent_complete: %g\n", job.PercentComplete)
	fmt.Fprintf(w, "created_at:       %s\n", job.CreatedAt)
	if job.InputURL != "" {
		fmt.Fprintf(w, "input_url:        %s\n", job.InputURL)
	}
	if len(job.OutputURLs) > 0 {
		fmt.Fprintf(w, "output_urls:      %s\n", strings.Join(job.OutputURLs, "\n                  "))
	}
	if job.Output != nil {
		fmt.Fprintf(w, "output_dataset:   %s (%d parts)\n", job.Output.ID, len(job.Output.Parts))
	}
}
