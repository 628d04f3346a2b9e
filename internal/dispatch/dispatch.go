// Package dispatch starts fire-and-forget invocations of named targets, either
// in-process or as asynchronous AWS Lambda invocations.
package dispatch

import (
	"context"
	"errors"
)

// ErrRejected is returned when an invocation is refused: the target is
// unknown, or the dispatcher is throttled or saturated.
var ErrRejected = errors.New("invocation rejected")

// Invoker starts an asynchronous invocation. A nil error means the invocation
// was accepted; it says nothing about the outcome.
type Invoker interface {
	InvokeAsync(ctx context.Context, target string, payload []byte) error
}

// Handler processes one invocation payload.
type Handler func(ctx context.Context, payload []byte) error
