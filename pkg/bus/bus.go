// Package bus is the bounded in-process queue between the webhook
// transport and the orchestration engine workers.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

type MessageBus struct {
	inbound chan InboundMessage
	done    chan struct{}
	closed  atomic.Bool
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound: make(chan InboundMessage, 100),
		done:    make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.inbound <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound blocks for the next message. After Close it keeps
// returning buffered messages until the queue is empty, so accepted
// work is not dropped during shutdown.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		select {
		case msg, ok := <-mb.inbound:
			return msg, ok
		default:
			return InboundMessage{}, false
		}
	}
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
