package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/antoniostano/baziview/internal/llm"
)

// ApologyPrefix starts every reply produced in place of a failed completion.
const ApologyPrefix = "I apologize, but I encountered an error: "

// ErrInvalidInput is returned for empty or whitespace-only messages.
var ErrInvalidInput = errors.New("chat: invalid input")

// InputError describes why a message was rejected.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// GatewayError wraps a failed or timed-out completion.
type GatewayError struct {
	Provider string
	Timeout  bool
	// Code is the llm.ErrorCode classification of Err.
	Code string
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s gateway timed out", e.Provider)
	}
	return fmt.Sprintf("%s gateway: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func newGatewayError(provider string, err error) *GatewayError {
	return &GatewayError{
		Provider: provider,
		Timeout:  errors.Is(err, context.DeadlineExceeded),
		Code:     llm.ErrorCode(err),
		Err:      err,
	}
}

// Detail is the user-facing part of the apology reply.
func (e *GatewayError) Detail() string {
	if e.Timeout {
		return "the assistant took too long to respond"
	}
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}
