package jobclient

import "context"

// TokenSource yields the current bearer token, or "" when there is none.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}
