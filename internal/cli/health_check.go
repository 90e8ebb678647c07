package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var healthCheckJSON bool

var healthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Report component reachability",
	Long:  `health-check probes the store, the budget cache, and the search client; exits 0 iff every check passes.`,
	RunE:  runHealthCheck,
}

func init() {
	healthCheckCmd.Flags().BoolVar(&healthCheckJSON, "json", false, "emit structured JSON")
}

type checkResult struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Note string `json:"note,omitempty"`
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var results []checkResult
	allOK := true

	_, err := db.SumCreditsSince(ctx, time.Now().Add(-24*time.Hour))
	results = append(results, checkOf("store", err))

	if rdb != nil {
		results = append(results, checkOf("redis", rdb.Ping(ctx).Err()))
	} else {
		results = append(results, checkResult{Name: "redis", OK: true, Note: "not configured"})
	}

	_, searchErr := cl.Search(ctx, "health check", 1)
	results = append(results, checkOf("search_client", searchErr))

	for _, r := range results {
		if !r.OK {
			allOK = false
		}
	}

	if healthCheckJSON {
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(struct {
			OK     bool          `json:"ok"`
			Checks []checkResult `json:"checks"`
		}{OK: allOK, Checks: results})
	} else {
		for _, r := range results {
			status := "ok"
			if !r.OK {
				status = "FAIL: " + r.Note
			}
			fmt.Printf("%-16s %s\n", r.Name, status)
		}
	}

	if !allOK {
		os.Exit(1)
	}
	return nil
}

func checkOf(name string, err error) checkResult {
	if err != nil {
		return checkResult{Name: name, OK: false, Note: err.Error()}
	}
	return checkResult{Name: name, OK: true}
}
