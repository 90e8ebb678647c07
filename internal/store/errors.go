package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStorageUnavailable wraps a transient store failure; callers retry.
type ErrStorageUnavailable struct {
	Op  string
	Err error
}

func (e *ErrStorageUnavailable) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *ErrStorageUnavailable) Unwrap() error { return e.Err }

// ErrStorageInvariantViolation wraps a permanent store failure (a constraint
// violation that should never happen given the upsert discipline). Callers
// abort rather than retry.
type ErrStorageInvariantViolation struct {
	Op  string
	Err error
}

func (e *ErrStorageInvariantViolation) Error() string {
	return fmt.Sprintf("storage invariant violation during %s: %v", e.Op, e.Err)
}

func (e *ErrStorageInvariantViolation) Unwrap() error { return e.Err }

// classify maps a raw pgx/driver error into the two kinds the core
// recognizes, per spec §4.1: permanent for class 23 integrity constraint
// violations, transient for everything else (class 08 connection, 53
// resource, 57 operator intervention, any other Postgres error class, and
// non-Postgres errors).
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08", "53", "57":
			return &ErrStorageUnavailable{Op: op, Err: err}
		case "23":
			return &ErrStorageInvariantViolation{Op: op, Err: err}
		}
	}
	// Network-ish/context errors are transient; treat anything else as
	// transient too since a permanent classification here would abort a
	// batch for reasons the caller cannot distinguish from a blip.
	return &ErrStorageUnavailable{Op: op, Err: err}
}
