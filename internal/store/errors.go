package store

import "fmt"

// PersistenceError reports that a pass could not be durably recorded.
// An analysis whose citations hit this error must not be returned as grounded.
type PersistenceError struct {
	Op         string
	DocumentID string
	VersionID  string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for %s@%s: %v", e.Op, e.DocumentID, e.VersionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
