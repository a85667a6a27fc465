package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when the actor may not touch the requested key.
	ErrForbidden = errors.New("not allowed")
	// ErrNotFound is returned by repositories for unknown rows.
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects a request before storage is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failed database interaction. Its message stays generic;
// the cause is available through Unwrap for logging.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "attendance storage unavailable, try again"
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
