package testutil

import (
	"context"
	"time"

	"mfrid/pkg/requestcontext"
)

// FixedTime returns a context whose request time is t, as the requesttime
// middleware would set it.
func FixedTime(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}
