// Package providers defines the neutral chat-completion contract the
// classifier and the specialist speak, with one adapter per vendor SDK.
package providers

import "context"

// Completer is a single-turn chat completion. Adapters carry their own
// model and credentials; callers only supply prompts.
type Completer interface {
	// Complete sends a system prompt plus one user message and returns
	// the assistant text.
	Complete(ctx context.Context, system, user string) (string, error)
	// Name returns the adapter identifier, for logs.
	Name() string
}
