package registry

import "errors"

var (
	ErrNotFound = errors.New("function not found")
	ErrConflict = errors.New("function name or route already in use")
)
