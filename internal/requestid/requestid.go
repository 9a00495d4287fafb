// Package requestid generates and propagates per-request correlation
// IDs. IDs travel on the X-Request-ID header at the edge and on the
// context inside the process.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New returns a fresh request ID.
func New() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// With returns a copy of ctx carrying the request ID.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the request ID carried by ctx, if any.
func From(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id, id != ""
}
