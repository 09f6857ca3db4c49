package llm

import "context"

// Prompt is one system + user exchange with a chat model.
type Prompt struct {
	System      string
	User        string
	Temperature float64
}

type Client interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f ClientFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}
