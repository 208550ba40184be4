package generator

import (
	"errors"
	"fmt"
)

// ErrMissingSource is matched by errors.Is when the source image is absent.
var ErrMissingSource = errors.New("source image not found")

// MissingSourceError reports the source path that failed the existence check.
type MissingSourceError struct {
	Path string
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingSource, e.Path)
}

// Is reports whether target is ErrMissingSource.
func (e *MissingSourceError) Is(target error) bool {
	return target == ErrMissingSource
}

// ProcessingError wraps any failure after the source check passed.
type ProcessingError struct {
	Op   string
	Path string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Operations reported by ProcessingError.
const (
	OpCreateOutputDir = "create output directory"
	OpDecode          = "decode source"
	OpEncode          = "encode"
	OpWrite           = "write"
)
