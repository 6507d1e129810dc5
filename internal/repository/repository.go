package repository

import "github.com/jackc/pgx/v5"

// ErrNotFound is the sentinel for missing records. Aliased to pgx.ErrNoRows
// so the postgres and in-memory implementations surface the same error.
var ErrNotFound = pgx.ErrNoRows
