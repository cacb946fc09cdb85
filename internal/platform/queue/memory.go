package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("queue closed")

// Memory is an in-process transport for development and tests.
type Memory struct {
	topic     string
	ch        chan *Message
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemory(topic string, buffer int, logger *slog.Logger) *Memory {
	if buffer < 0 {
		buffer = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		topic:  topic,
		ch:     make(chan *Message, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Publish enqueues domain, blocking while the buffer is full.
func (m *Memory) Publish(ctx context.Context, domain string) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	msg := &Message{
		Topic:   m.topic,
		Value:   []byte(domain),
		Headers: map[string]string{HeaderRequestID: RequestID(ctx)},
	}
	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// Consume handles messages until ctx is cancelled or the queue is closed.
func (m *Memory) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case msg := <-m.ch:
			if err := handler(ctx, msg); err != nil {
				m.logger.ErrorContext(ctx, "message handler failed", "topic", msg.Topic, "error", err)
			}
		}
	}
}

// Len reports how many messages are waiting.
func (m *Memory) Len() int { return len(m.ch) }

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
