package codegen

import (
	"errors"
	"fmt"

	"github.com/xplshn/g65/pkg/token"
)

var (
	ErrCapacity      = errors.New("program does not fit in memory")
	ErrMalformedTree = errors.New("malformed tree")
	ErrJumpTableFull = errors.New("jump table full")
	ErrLiteralRange  = errors.New("literal out of range")
)

// Error locates a generation failure at the node being compiled.
type Error struct {
	Tok token.Token
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func errorAt(tok token.Token, err error) error {
	var located *Error
	if err == nil || errors.As(err, &located) {
		return err
	}
	return &Error{Tok: tok, Err: err}
}

func malformed(tok token.Token, format string, args ...interface{}) error {
	return &Error{Tok: tok, Err: fmt.Errorf("%w: %s", ErrMalformedTree, fmt.Sprintf(format, args...))}
}
