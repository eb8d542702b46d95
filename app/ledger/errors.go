package ledger

import (
	"errors"
	"fmt"
)

// ErrLedgerLocked is returned when another writer holds the ledger lock.
var ErrLedgerLocked = errors.New("ledger is locked by another writer")

// StorageError reports a ledger or output file I/O failure. It is the only
// error class that aborts a source's run.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err wraps a StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}
