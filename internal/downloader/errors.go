package downloader

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrIO indicates a local filesystem failure.
	ErrIO = errors.New("local I/O error")

	// ErrInvalidKey indicates a key that cannot be mapped below the
	// destination folder.
	ErrInvalidKey = errors.New("invalid object key")
)

// DownloadError is returned by Run. In fail-fast mode it holds exactly one
// error; with continue-on-error it holds every failure in request order.
type DownloadError struct {
	err error
}

func newDownloadError(errs ...error) *DownloadError {
	return &DownloadError{err: multierr.Combine(errs...)}
}

func (e *DownloadError) Error() string {
	errs := e.Unwrap()
	if len(errs) == 1 {
		return "download failed: " + errs[0].Error()
	}
	return fmt.Sprintf("download failed with %d errors: %v", len(errs), e.err)
}

func (e *DownloadError) Unwrap() []error {
	return multierr.Errors(e.err)
}

// First returns the first failure.
func (e *DownloadError) First() error {
	if errs := e.Unwrap(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func ioError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}
