package ingest

import "fmt"

// StorageError wraps a persistence failure. It is the only ingestion error
// that is the server's fault.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ingest: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
