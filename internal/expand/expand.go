// Package expand implements the Query Expander (spec §4.2): a pure function
// from job parameters to the full, deterministically ordered set of
// (zip, page) query rows. It has no side effects and does not talk to the
// store; the caller persists the result via the queue protocol.
package expand

import (
	"fmt"

	"github.com/Brite-Nites/serper-tap/internal/domain"
	"github.com/Brite-Nites/serper-tap/internal/zips"
)

// Queries fetches zips.ZipsForState(params.State) and emits one queued
// domain.Query per (zip, page) pair, page ranging over [1, params.Pages].
// The result is ordered lexicographically by (zip, page), matching the order
// the claim protocol observes (spec §4.2 "Determinism").
func Queries(source zips.Source, params domain.JobParams) ([]domain.Query, error) {
	if params.Pages < 1 {
		return nil, fmt.Errorf("pages must be >= 1, got %d", params.Pages)
	}
	zipList, err := source.ZipsForState(params.State)
	if err != nil {
		return nil, fmt.Errorf("zips_for_state(%q): %w", params.State, err)
	}

	rows := make([]domain.Query, 0, len(zipList)*params.Pages)
	for _, z := range zipList {
		for page := 1; page <= params.Pages; page++ {
			rows = append(rows, domain.Query{
				JobID:  params.JobID,
				Zip:    z,
				Page:   page,
				Q:      formatQuery(z, params.Keyword),
				Status: domain.QueryQueued,
			})
		}
	}
	return rows, nil
}

// formatQuery builds the search string handed to the Search Client Adapter,
// per spec §3's q = format(zip, keyword) convention.
func formatQuery(zip, keyword string) string {
	return fmt.Sprintf("%s %s", zip, keyword)
}
