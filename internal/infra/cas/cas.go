// Package cas stores immutable blobs keyed by their CIDv1 (raw, sha2-256)
// and keeps a pin set of blobs that must survive garbage collection.
package cas

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("cas: not found")
	ErrInvalidCID  = errors.New("cas: invalid cid")
	ErrCIDMismatch = errors.New("cas: cid mismatch")
	ErrImmutable   = errors.New("cas: immutable object mismatch")
)

type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
	Has(ctx context.Context, address string) bool
	Pin(ctx context.Context, address string) error
	Pinned(ctx context.Context, address string) bool
	NodeID() string
}
