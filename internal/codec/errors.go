package codec

import (
	"errors"
	"fmt"
)

// Kind classifies why a decode failed.
type Kind int

const (
	// KindUnsupported means no decoder handles the format, or the decoder
	// it needs is not installed.
	KindUnsupported Kind = iota
	// KindCorrupt means the file was read but its data could not be decoded.
	KindCorrupt
	// KindUnreadable means the file could not be read at all.
	KindUnreadable
)

// Sentinels matched by errors.Is against a *DecodeError of the same kind.
var (
	ErrUnsupported = errors.New("format unsupported")
	ErrCorrupt     = errors.New("corrupt data")
	ErrUnreadable  = errors.New("file unreadable")
)

func (k Kind) String() string {
	switch k {
	case KindCorrupt:
		return "corrupt"
	case KindUnreadable:
		return "unreadable"
	default:
		return "unsupported"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindCorrupt:
		return ErrCorrupt
	case KindUnreadable:
		return ErrUnreadable
	default:
		return ErrUnsupported
	}
}

// DecodeError is returned by every decoder in this package.
type DecodeError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %s: %s", e.Path, e.Kind.sentinel())
	}
	return fmt.Sprintf("decode %s: %s: %v", e.Path, e.Kind.sentinel(), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *DecodeError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Transient reports whether a retry on a later visit may succeed.
// Unreadable files are usually network blips or locks.
func (e *DecodeError) Transient() bool {
	return e.Kind == KindUnreadable
}

func unsupported(path string, err error) *DecodeError {
	return &DecodeError{Kind: KindUnsupported, Path: path, Err: err}
}

func corrupt(path string, err error) *DecodeError {
	return &DecodeError{Kind: KindCorrupt, Path: path, Err: err}
}

func unreadable(path string, err error) *DecodeError {
	return &DecodeError{Kind: KindUnreadable, Path: path, Err: err}
}

// IsTransient reports whether err is a transient *DecodeError.
func IsTransient(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Transient()
}
