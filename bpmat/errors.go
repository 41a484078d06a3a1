package bpmat

import "errors"

// Sentinel errors for the matrix and vector layers. Failure sites wrap
// these with the offending indices, so callers match with errors.Is and
// read the context from the message.
var (
	ErrBlockSize          = errors.New("bpmat: unsupported block size")
	ErrStructuralMismatch = errors.New("bpmat: entry outside allocated structure")
	ErrDimensionMismatch  = errors.New("bpmat: dimension mismatch")
	ErrSingular           = errors.New("bpmat: singular matrix")
	ErrNotFactored        = errors.New("bpmat: matrix not factored")
	ErrState              = errors.New("bpmat: assembly incomplete")
)
