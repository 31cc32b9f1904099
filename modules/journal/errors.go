package journal

import "errors"

var (
	ErrInvalidConfig   = errors.New("invalid journal configuration")
	ErrStoreClosed     = errors.New("journal store is closed")
	ErrJournalFull     = errors.New("journal buffer full")
	ErrNotStarted      = errors.New("journal not started")
	ErrMigrationFailed = errors.New("journal migration failed")
)
