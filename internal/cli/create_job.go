package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Brite-Nites/serper-tap/internal/budget"
	"github.com/Brite-Nites/serper-tap/internal/domain"
	"github.com/Brite-Nites/serper-tap/internal/lifecycle"
)

var (
	createKeyword     string
	createState       string
	createPages       int
	createBatchSize   int
	createConcurrency int
	createDryRun      bool
)

var createJobCmd = &cobra.Command{
	Use:   "create-job",
	Short: "Validate, budget-check, expand, and enqueue a new job",
	Long: `create-job validates input, runs the budget guard, expands the job into
(zip, page) queries, and enqueues them. Prints job_id on stdout on success.

Exit codes: 0 success, 2 validation error, 3 budget exceeded, 1 other failure.`,
	RunE: runCreateJob,
}

func init() {
	createJobCmd.Flags().StringVar(&createKeyword, "keyword", "", "search keyword (required)")
	createJobCmd.Flags().StringVar(&createState, "state", "", "U.S. state abbreviation (required)")
	createJobCmd.Flags().IntVar(&createPages, "pages", 0, "page depth per zip, >= 1 (default from DEFAULT_PAGES)")
	createJobCmd.Flags().IntVar(&createBatchSize, "batch-size", 0, "queries claimed per batch (default from DEFAULT_BATCH_SIZE)")
	createJobCmd.Flags().IntVar(&createConcurrency, "concurrency", 0, "in-flight search calls per batch (default from DEFAULT_CONCURRENCY)")
	createJobCmd.Flags().BoolVar(&createDryRun, "dry-run", false, "label this job as a dry run")
}

func runCreateJob(cmd *cobra.Command, args []string) error {
	batchSize := createBatchSize
	if batchSize == 0 {
		batchSize = cfg.DefaultBatchSize
	}
	concurrency := createConcurrency
	if concurrency == 0 {
		concurrency = cfg.DefaultConcurrency
	}
	pages := createPages
	if pages == 0 {
		pages = cfg.DefaultPages
	}

	params := domain.JobParams{
		JobID: uuid.NewString(), Keyword: createKeyword, State: createState,
		Pages: pages, BatchSize: batchSize, Concurrency: concurrency, DryRun: createDryRun,
	}

	job, err := lc.CreateJob(cmd.Context(), params)
	if err != nil {
		var vErr *lifecycle.ValidationError
		var bErr *budget.Exceeded
		switch {
		case errors.As(err, &vErr):
			fmt.Fprintln(os.Stderr, vErr.Error())
			os.Exit(2)
		case errors.As(err, &bErr):
			fmt.Fprintln(os.Stderr, bErr.Error())
			os.Exit(3)
		default:
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	fmt.Println(job.JobID)
	return nil
}
