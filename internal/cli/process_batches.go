package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var processBatchesCmd = &cobra.Command{
	Use:   "process-batches",
	Short: "Drive the Job Coordinator loop until idle",
	Long: `process-batches claims and executes batches for every running job until
no running jobs remain, then exits 0. SIGINT/SIGTERM requests a graceful
stop: the current batch completes before the process exits.`,
	RunE: runProcessBatches,
}

func runProcessBatches(cmd *cobra.Command, args []string) error {
	co := newCoordinator()

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info("shutdown signal received, finishing current batch")
		co.RequestStop()
	}()
	defer signal.Stop(sigc)

	return co.Run(cmd.Context())
}
