package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPrincipal means no session principal could be resolved.
	ErrNoPrincipal = errors.New("no authenticated principal")

	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnsupportedTable is returned for tables the backend does not manage.
	ErrUnsupportedTable = errors.New("unsupported table")
)

// StoreError wraps a failed query, insert, update, delete or upload against the backend.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err wraps a *StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func storeErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Table: table, Err: err}
}
