package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested job does not exist. Callers
	// treat this as a no-op signal, never as exceptional.
	ErrNotFound = errors.New("job not found")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict.
	// This occurs when concurrent drain invocations race on the queue;
	// the losing invocation should treat it as "no work".
	ErrTransactionConflict = errors.New("transaction conflict")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel when it matches a known query error pattern.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
		}
	}

	return err
}
