package store

import (
	"context"

	"github.com/Brite-Nites/serper-tap/internal/domain"
)

// UpsertPlaces is the place-row upsert of spec §4.5 step 4: match_on =
// (job_id, place_uid), so a place already persisted by an earlier attempt
// at this query is never duplicated (spec §8 property 2). payload_raw is
// always present; payload is nullable when the parsed form failed (spec
// §7's PayloadParseFailure).
func (s *PGStore) UpsertPlaces(ctx context.Context, places []domain.Place) (int, error) {
	if len(places) == 0 {
		return 0, nil
	}
	cols := []string{
		"job_id", "place_uid", "payload", "payload_raw", "keyword", "state", "zip", "page",
		"api_status", "api_ms", "results_count", "credits", "ingest_ts", "source", "source_version", "ingest_id",
	}
	rows := make([][]any, 0, len(places))
	for _, p := range places {
		var payload any
		if p.Payload != nil {
			payload = string(p.Payload)
		}
		rows = append(rows, []any{
			p.JobID, p.PlaceUID, payload, p.PayloadRaw, p.Keyword, p.State, p.Zip, p.Page,
			p.APIStatus, p.APIMs, p.ResultsCount, p.Credits, p.IngestTS, p.Source, p.SourceVersion, p.IngestID,
		})
	}
	inserted, err := s.db.Upsert(ctx, s.placesTable, cols, rows, []string{"job_id", "place_uid"})
	return int(inserted), err
}
