package registry

import "errors"

// Errors
var (
	ErrEmptyAddress = errors.New("empty account address")
	ErrNilCallback  = errors.New("nil callback")
)
