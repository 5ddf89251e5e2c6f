package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/constants"
)

// Document is the immutable input shared read-only by every method of a run.
type Document struct {
	ID        uuid.UUID
	Content   []byte
	MediaType string
}

// Output is what a method recovered from a document.
type Output struct {
	Text           string
	Pages          int
	StructuredData bool
}

// Method is one extraction strategy.
type Method interface {
	Name() constants.Method
	// Remote reports whether the method calls a network service and may be retried.
	Remote() bool
	Extract(ctx context.Context, doc Document) (Output, error)
}

// MethodError describes a failed method call.
type MethodError struct {
	Method    constants.Method
	Kind      constants.AttemptErrorKind
	Retryable bool
	Err       error
}

func (e *MethodError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Method, e.Kind)
}

func (e *MethodError) Unwrap() []error {
	return []error{common.ErrMethodFailed, e.Err}
}

func newMethodError(m constants.Method, kind constants.AttemptErrorKind, err error) *MethodError {
	return &MethodError{Method: m, Kind: kind, Retryable: retryableKind(kind), Err: err}
}

func retryableKind(k constants.AttemptErrorKind) bool {
	switch k {
	case constants.ErrorKindTimeout, constants.ErrorKindRateLimited, constants.ErrorKindNetwork:
		return true
	}
	return false
}

// Classify returns the kind and retryability of any error a method returned.
func Classify(err error) (constants.AttemptErrorKind, bool) {
	var me *MethodError
	if errors.As(err, &me) {
		return me.Kind, me.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return constants.ErrorKindTimeout, true
	}
	if errors.Is(err, context.Canceled) {
		return constants.ErrorKindTimeout, false
	}
	return constants.ErrorKindInternal, false
}
