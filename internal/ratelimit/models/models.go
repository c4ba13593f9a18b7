// Package models holds the rate limiter's result and response types.
package models

import "fmt"

// KeyPrefixIP namespaces per-client-address buckets.
const KeyPrefixIP = "ip"

// NewIPKey builds the bucket key for a client address.
func NewIPKey(ip string) string {
	return fmt.Sprintf("%s:%s", KeyPrefixIP, ip)
}

// RateLimitResult is the outcome of a single Allow check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the whole number of seconds until the next token.
	RetryAfter int
}

// RateLimitExceededResponse is the 429 body. It keeps the success flag so the
// form UI can treat it like any other failure envelope.
type RateLimitExceededResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
