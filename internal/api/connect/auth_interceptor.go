// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"crypto/subtle"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// RemoteTokenHeader is the header name for remote authentication token.
	RemoteTokenHeader = "X-Remote-Token"
)

var errInvalidToken = errors.New("invalid remote token")

// remoteAuth validates remote tokens from request metadata for unary and
// streaming RemoteService methods.
type remoteAuth struct {
	token string
}

// NewRemoteAuthInterceptor creates an interceptor that checks the
// X-Remote-Token header against token.
func NewRemoteAuthInterceptor(token string) connect.Interceptor {
	return &remoteAuth{token: token}
}

func (a *remoteAuth) valid(h http.Header) bool {
	got := h.Get(RemoteTokenHeader)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) == 1
}

func (a *remoteAuth) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if !a.valid(req.Header()) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, req)
	}
}

func (a *remoteAuth) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (a *remoteAuth) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !a.valid(conn.RequestHeader()) {
			return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, conn)
	}
}
