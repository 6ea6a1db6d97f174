package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind categorizes failures so callers can decide between absorbing,
// failing a stage, or mapping to a transport status.
type Kind string

const (
	KindExtraction        Kind = "EXTRACTION"
	KindEmbedding         Kind = "EMBEDDING"
	KindProvider          Kind = "PROVIDER"
	KindProviderTransient Kind = "PROVIDER_TRANSIENT"
	KindCommit            Kind = "COMMIT"
	KindProfileMissing    Kind = "PROFILE_MISSING"
	KindCanceled          Kind = "CANCELED"
	KindValidation        Kind = "VALIDATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindInternal          Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Extraction(message string, err error) error {
	return New(KindExtraction, message, err)
}

func Embedding(message string, err error) error {
	return New(KindEmbedding, message, err)
}

func Commit(message string, err error) error {
	return New(KindCommit, message, err)
}

func ProfileMissing(message string) error {
	return New(KindProfileMissing, message, nil)
}

func Validation(message string) error {
	return New(KindValidation, message, nil)
}

func NotFound(message string) error {
	return New(KindNotFound, message, nil)
}

// KindOf returns the outermost Kind in the chain. Context errors are
// reported as KindCanceled, provider errors by their transience, anything
// else as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.Transient() {
			return KindProviderTransient
		}
		return KindProvider
	}
	return KindInternal
}

// Is reports whether any error in the chain carries kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			break
		}
		if appErr.Kind == kind {
			return true
		}
		err = appErr.Err
	}
	return KindOf(err) == kind
}
