// Package responsewriter makes the response writer of a request reachable
// from code that only receives the request context, such as the session
// manager setting its cookie.
package responsewriter

import (
	"context"
	"errors"
	"net/http"
)

type ctxKey struct{}

var ErrNotInContext = errors.New("response writer not found in context")

// Middleware stores w in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), w)))
	})
}

func NewContext(ctx context.Context, w http.ResponseWriter) context.Context {
	return context.WithValue(ctx, ctxKey{}, w)
}

// FromContext returns the response writer stored by Middleware.
func FromContext(ctx context.Context) (http.ResponseWriter, error) {
	w, ok := ctx.Value(ctxKey{}).(http.ResponseWriter)
	if !ok {
		return nil, ErrNotInContext
	}

	return w, nil
}
