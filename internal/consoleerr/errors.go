package consoleerr

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNetwork      = errors.New("backend unreachable")
	ErrValidation   = errors.New("validation failed")
	ErrReadOnly     = errors.New("resource is read only")
	ErrBusy         = errors.New("request already in flight")
	ErrCircuitOpen  = errors.New("circuit breaker is open")
	ErrNoToken      = errors.New("no auth token configured")
)
