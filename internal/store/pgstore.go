package store

// PGStore implements Store over an Adapter (normally a *PGAdapter backed by
// pgxpool.Pool). Table names are BigQuery/Postgres-flavored identifiers
// templated in, per spec §6's persisted state layout; values are always
// bound parameters.
type PGStore struct {
	db Adapter

	jobsTable    string
	queriesTable string
	placesTable  string
}

type PGStoreOptions struct {
	Schema string // defaults to "public"
}

func NewPGStore(db Adapter, opts PGStoreOptions) *PGStore {
	schema := opts.Schema
	if schema == "" {
		schema = "public"
	}
	return &PGStore{
		db:           db,
		jobsTable:    schema + ".jobs",
		queriesTable: schema + ".queries",
		placesTable:  schema + ".places",
	}
}
