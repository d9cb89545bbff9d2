package tensor

import "github.com/pkg/errors"

// Usage errors returned by tensors, layers and models.
//
// They are always returned wrapped with context; test for them with errors.Is.
var (
	ErrInvalidShape  = errors.New("invalid tensor shape")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrIllegalState  = errors.New("illegal state")
	ErrSizeMismatch  = errors.New("size mismatch")
)
