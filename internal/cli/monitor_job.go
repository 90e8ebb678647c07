package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brite-Nites/serper-tap/internal/domain"
)

var monitorInterval int

var monitorJobCmd = &cobra.Command{
	Use:   "monitor-job <job_id>",
	Short: "Print job rollup and per-status counts until done",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorJob,
}

func init() {
	monitorJobCmd.Flags().IntVar(&monitorInterval, "interval", 2, "seconds between polls")
}

func runMonitorJob(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	ctx := cmd.Context()

	for {
		totals, err := db.UpdateTotals(ctx, jobID)
		if err != nil {
			return err
		}
		job, err := db.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		queued, processing, err := db.CountQueuedOrProcessing(ctx, jobID)
		if err != nil {
			return err
		}

		printRollup(jobID, job.Status, totals, queued, processing)

		if job.Status == domain.JobDone {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(monitorInterval) * time.Second):
		}
	}
}

func printRollup(jobID string, status domain.JobStatus, t domain.Totals, queued, processing int) {
	fmt.Printf("job_id=%s status=%s zips=%d queries=%d queued=%d processing=%d successes=%d failures=%d skipped=%d places=%d credits=%d\n",
		jobID, status, t.Zips, t.Queries, queued, processing, t.Successes, t.Failures, t.Skipped, t.Places, t.Credits)
}
