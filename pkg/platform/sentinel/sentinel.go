// Package sentinel holds infrastructure error facts shared across backends.
package sentinel

import "errors"

// ErrUnavailable marks a backend that is disabled, unreachable or timed out.
// Clients wrap it so callers can branch with errors.Is without knowing which
// backend produced the error.
var ErrUnavailable = errors.New("unavailable")
