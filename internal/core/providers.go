package core

import "context"

// AIProvider is the opaque generation capability. Chat blocks until the full
// response is available. ChatStream invokes onDelta for every fragment as it
// arrives and returns the concatenation produced so far; on error the partial
// text is still returned so the caller can persist it. The fragment sequence
// is finite and non-restartable. onDelta returning an error cancels the
// stream.
type AIProvider interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
	ChatStream(ctx context.Context, messages []ChatMessage, onDelta func(fragment string) error) (string, error)
}
