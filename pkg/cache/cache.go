// Package cache stores paginated query results per collection. Entries are
// grouped under a per-collection generation so a single invalidation drops
// every cached page of that collection.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMiss is returned by Get when no entry exists for the key.
var ErrMiss = errors.New("cache miss")

// Slot is where Set stores the page a missed Get was about to load. It pins
// the collection generation Get observed, so a page read before an
// invalidation lands where no later Get looks.
type Slot struct {
	Collection string
	Key        string
}

// IsZero reports whether the slot addresses nothing. Set ignores zero slots.
func (s Slot) IsZero() bool {
	return s.Key == ""
}

// PageCache caches paginated results.
type PageCache interface {
	// Get decodes the cached value for (collection, key) into dest. It
	// returns ErrMiss when nothing is cached, together with the slot the
	// value should be stored in once loaded.
	Get(ctx context.Context, collection string, key any, dest any) (Slot, error)
	// Set stores value in a slot returned by Get.
	Set(ctx context.Context, slot Slot, value any) error
	// Invalidate drops every entry cached for collection.
	Invalidate(ctx context.Context, collection string) error
}

// Fingerprint hashes the JSON encoding of key.
func Fingerprint(key any) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Nop is a PageCache that never stores anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string, any, any) (Slot, error) { return Slot{}, ErrMiss }

// Set discards the value.
func (Nop) Set(context.Context, Slot, any) error { return nil }

// Invalidate does nothing.
func (Nop) Invalidate(context.Context, string) error { return nil }
