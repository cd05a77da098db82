package filemanager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fruitsalade/filemanager/internal/storage"
)

// Error kinds. Every error returned by Manager matches exactly one of these
// with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrValidation      = errors.New("validation failed")
	ErrFeatureDisabled = errors.New("feature disabled")
	ErrBackendFailure  = errors.New("backend failure")
	ErrPartialFailure  = errors.New("partial failure")
	ErrInvalidPath     = errors.New("invalid path")
)

var kinds = []error{
	ErrNotFound,
	ErrAlreadyExists,
	ErrValidation,
	ErrFeatureDisabled,
	ErrPartialFailure,
	ErrInvalidPath,
	ErrBackendFailure,
}

// OpError records the operation and path that failed.
type OpError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil && e.Err != e.Kind {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *OpError) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ValidationError lists every rule an upload violated.
type ValidationError struct {
	Name       string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// KindOf returns the kind sentinel matching err, or nil for a nil error.
// Errors that match no kind are backend failures.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrBackendFailure
}

func opErr(op, path string, kind, err error) error {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// backendErr classifies an error returned by a Disk. Absence maps to
// ErrNotFound, anything else to ErrBackendFailure. Errors that already carry
// a kind are returned unchanged.
func backendErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	if errors.Is(err, storage.ErrNotExist) {
		return opErr(op, path, ErrNotFound, err)
	}
	if errors.Is(err, storage.ErrExist) {
		return opErr(op, path, ErrAlreadyExists, err)
	}
	if errors.Is(err, storage.ErrUnknownDisk) {
		return opErr(op, path, ErrNotFound, err)
	}
	return opErr(op, path, ErrBackendFailure, err)
}
