package fleetws

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const tokenQueryParam = "token"

type (
	// OpenConnectionParams is everything needed to dial one socket.
	OpenConnectionParams struct {
		URL    url.URL
		Header http.Header
	}

	OpenConnectionParamsGetter func(ctx context.Context, token string) (OpenConnectionParams, error)

	OpenConnectionParamsRepo struct {
		logger Logger
		getter OpenConnectionParamsGetter
	}
)

func (r OpenConnectionParamsRepo) Get(
	ctx context.Context,
	token string,
) (params OpenConnectionParams, err error) {
	params, err = r.getter(ctx, token)
	if err != nil {
		r.logger.Errorf("cannot build open connection params: %s", err)
	}
	return
}

func NewOpenConnectionParamsRepo(
	logger Logger,
	getter OpenConnectionParamsGetter,
) OpenConnectionParamsRepo {
	return OpenConnectionParamsRepo{getter: getter, logger: logger}
}

// NewStreamParamsGetter derives stream params from an HTTP(S) endpoint.
func NewStreamParamsGetter(endpoint, path string) OpenConnectionParamsGetter {
	return func(_ context.Context, token string) (OpenConnectionParams, error) {
		return StreamParams(endpoint, path, token)
	}
}

// StreamParams upgrades endpoint's scheme (http to ws, https to wss), sets
// path and carries token as a query credential.
func StreamParams(endpoint, path, token string) (OpenConnectionParams, error) {
	if token == "" {
		return OpenConnectionParams{}, ErrEmptyToken
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return OpenConnectionParams{}, errors.Wrapf(ErrInvalidConfig, "parse endpoint: %s", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return OpenConnectionParams{}, errors.Wrapf(ErrInvalidConfig, "unsupported endpoint scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return OpenConnectionParams{}, errors.Wrap(ErrInvalidConfig, "endpoint has no host")
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")

	q := u.Query()
	q.Set(tokenQueryParam, token)
	u.RawQuery = q.Encode()

	return OpenConnectionParams{URL: *u, Header: http.Header{}}, nil
}

// redactURL masks the token query value so URLs are safe to log.
func redactURL(u url.URL) string {
	q := u.Query()
	if q.Has(tokenQueryParam) {
		q.Set(tokenQueryParam, "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
