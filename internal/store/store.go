// Package store provides the durable context store: the authoritative,
// append-only record of ingested migration context fragments.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for ids that no longer resolve to a record,
// e.g. references held by a stale index snapshot. Callers are expected to
// skip such ids rather than fail.
var ErrNotFound = errors.New("store: record not found")

// Reader is the store interface the retrieval core consumes.
type Reader interface {
	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// ListAll returns every record. Used at index build time only.
	ListAll(ctx context.Context) ([]Record, error)
}

// Writer is the ingestion-side interface. The core never writes.
type Writer interface {
	// Put inserts a record. Ids must be unique; re-inserting an id is an error.
	Put(ctx context.Context, rec *Record) error
	// PutBatch inserts records in a single transaction.
	PutBatch(ctx context.Context, recs []Record) error
}

// Store combines both sides plus lifecycle.
type Store interface {
	Reader
	Writer
	Close() error
}
