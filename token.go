package fleetws

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// TokenProvider supplies the bearer credential used to open the stream.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrEmptyToken
	}
	return string(t), nil
}

// EnvToken reads the token from an environment variable on every call.
type EnvToken string

func (e EnvToken) Token(context.Context) (string, error) {
	v := os.Getenv(string(e))
	if v == "" {
		return "", errors.Wrapf(ErrEmptyToken, "environment variable %s", string(e))
	}
	return v, nil
}
