package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures by their documented handling.
type ErrorKind int

const (
	KindTransientStore ErrorKind = iota
	KindPermanentStore
	KindTransientGeneration
	KindPermanentGeneration
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransientStore:
		return "transient_store"
	case KindPermanentStore:
		return "permanent_store"
	case KindTransientGeneration:
		return "transient_generation"
	case KindPermanentGeneration:
		return "permanent_generation"
	}
	return "unknown"
}

// TurnError wraps an underlying error with its handling kind.
type TurnError struct {
	Kind ErrorKind
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// NewTurnError wraps err with the given kind.
func NewTurnError(kind ErrorKind, err error) *TurnError {
	return &TurnError{Kind: kind, Err: err}
}

// KindOf extracts the error kind; unknown errors are treated as permanent
// generation failures so the turn still answers with the fallback line.
func KindOf(err error) ErrorKind {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindPermanentGeneration
}
