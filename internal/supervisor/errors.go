package supervisor

import (
	"errors"

	"github.com/loykin/everlast/internal/child"
	"github.com/loykin/everlast/internal/strategy"
)

var (
	// ErrNotFound: the index refers to an empty slot.
	ErrNotFound = errors.New("child not found")
	// ErrInvalidState: the child's state forbids the operation.
	ErrInvalidState = errors.New("invalid child state")
	// ErrInvalidSpec: the child spec failed validation.
	ErrInvalidSpec = child.ErrInvalidSpec
	// ErrInvalidArgument: a malformed argument such as a negative index.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnimplemented is published by the base restart strategy.
	ErrUnimplemented = strategy.ErrUnimplemented
	// ErrClosed: the supervisor's control loop has stopped.
	ErrClosed = errors.New("supervisor closed")
)
