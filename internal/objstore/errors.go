package objstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested key or bucket does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrConnection covers client construction and transport failures.
	ErrConnection = errors.New("object store connection error")
)

// Error carries the operation and location of a failed store call.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("objstore.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("objstore.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("objstore.%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, bucket, key string, kind, cause error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    fmt.Errorf("%w: %w", kind, cause),
	}
}
