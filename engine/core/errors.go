package core

import (
	"errors"
)

var (
	// ErrReflectionFailure marks malformed or unsupported shader binding metadata.
	// The shader cannot be used; no partial result is returned.
	ErrReflectionFailure = errors.New("shader reflection failed")
	// ErrBudgetExceeded marks a shader combination whose layout does not fit the
	// root signature or internal ceilings.
	ErrBudgetExceeded = errors.New("root signature budget exceeded")
	// ErrRealizationFailure marks a device that refused to serialize or create
	// the native root signature. Nothing is cached; the caller may retry.
	ErrRealizationFailure = errors.New("root signature realization failed")
	ErrUnknown            = errors.New("unknown")
)
