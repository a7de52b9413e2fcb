// Package storage is the key-value collaborator behind workflow persistence
// and the local tool set.
//
// Values are opaque bytes. A missing or expired key is reported as
// ErrNotFound. Every backend also implements Scanner for prefix listing.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is a namespaced key-value store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases connections and files.
	Close() error
}

// Scanner lists keys by prefix.
type Scanner interface {
	// Keys returns every live key starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Sentinel errors.
var (
	ErrNotFound    = errors.New("key not found")
	ErrStoreClosed = errors.New("store closed")
)

// Tenant identifies the owner of stored data.
type Tenant struct {
	UserID string
	OrgID  string // empty for a personal context
}

// Namespace returns the key prefix for t: "user:{uid}" or
// "org:{org}:user:{uid}".
func (t Tenant) Namespace() string {
	if t.OrgID == "" {
		return "user:" + t.UserID
	}
	return "org:" + t.OrgID + ":user:" + t.UserID
}

// Key joins parts with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
