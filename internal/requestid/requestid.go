// Package requestid carries the X-Request-ID of an inbound console request
// through to the calls it makes on the clinic API.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

const Header = "X-Request-ID"

type contextKey struct{}

func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func From(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// FromOrNew returns the id carried by ctx, or a fresh one.
func FromOrNew(ctx context.Context) string {
	if id, ok := From(ctx); ok {
		return id
	}
	return uuid.NewString()
}
