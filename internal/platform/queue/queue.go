// Package queue defines the job transport shared by the Kafka, RabbitMQ and
// in-process drivers. Delivery is at-least-once; a message body is the raw
// domain name.
package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"domainintel/pkg/requestcontext"
)

// HeaderRequestID correlates a submission with the worker logs it produces.
const HeaderRequestID = "request_id"

// RequestID returns the id of the request that enqueued a job, generating
// one when ctx carries none.
func RequestID(ctx context.Context) string {
	if id := requestcontext.RequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// Message is one delivered job.
type Message struct {
	Topic   string
	Value   []byte
	Headers map[string]string
}

// Handler processes one message. The consumer acknowledges the message
// after Handler returns, whatever the result.
type Handler func(ctx context.Context, msg *Message) error

// Consumer delivers messages to a Handler one at a time until ctx is
// cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// ConnectError is returned once every connect attempt has failed.
type ConnectError struct {
	Target   string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s failed after %d attempt(s): %v", e.Target, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
