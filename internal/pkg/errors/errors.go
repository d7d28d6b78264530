package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrTooMany  = errors.New("too many requests")
	ErrInternal = errors.New("internal")

	ErrGeneration            = errors.New("generation failed")
	ErrSearch                = errors.New("search failed")
	ErrFetch                 = errors.New("fetch failed")
	ErrIngestionVerification = errors.New("ingestion verification failed")
	ErrChat                  = errors.New("chat failed")
)

// kindError tags err with a sentinel kind while keeping the original message.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// Wrap marks err as kind. Errors that already carry kind are returned as is.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

// Wrapf is Wrap over a formatted message.
func Wrapf(kind error, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
