// Package bmerrors declares the sentinel error kinds shared across the
// mapping-resolution engine so callers can discriminate failure modes with
// errors.Is instead of string matching.
package bmerrors

import "errors"

var (
	// ErrNotFound means no mapping/resource satisfies the query. Adapters and
	// the cache return this only internally; public lookup APIs turn it into
	// an empty result rather than propagating it to callers.
	ErrNotFound = errors.New("biomapper: not found")

	// ErrValidation means caller-supplied data violates a contract (unknown
	// resource name, empty required input, out-of-range confidence). Never
	// retried.
	ErrValidation = errors.New("biomapper: validation error")

	// ErrTimeout means a per-adapter deadline expired.
	ErrTimeout = errors.New("biomapper: timeout")

	// ErrAdapter wraps a backend-raised failure.
	ErrAdapter = errors.New("biomapper: adapter error")

	// ErrConfig means required configuration was missing or malformed.
	// Fatal at construction time.
	ErrConfig = errors.New("biomapper: config error")

	// ErrConnectivity means a backing store was unreachable at construction
	// time. Fatal.
	ErrConnectivity = errors.New("biomapper: connectivity error")

	// ErrStore means a database transaction failed; the operation had no
	// effect.
	ErrStore = errors.New("biomapper: store error")
)
