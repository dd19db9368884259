package retrieval

import "errors"

var (
	// ErrInvalidQuery marks malformed caller input, e.g. empty query text.
	// Surfaced immediately, never retried.
	ErrInvalidQuery = errors.New("retrieval: invalid query")
	// ErrRetrievalFailed marks an embedding failure that survived its single
	// retry. The caller decides whether to degrade or fail.
	ErrRetrievalFailed = errors.New("retrieval: embedding query failed")
)
