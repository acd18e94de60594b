package schema

import "errors"

var (
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrInvalidRegistry = errors.New("invalid schema registry")
)
