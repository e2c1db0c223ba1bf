package apperr

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrMalformedInvocation = errors.New("malformed capability invocation")
	ErrTurnLimit           = errors.New("turn limit reached")
)
