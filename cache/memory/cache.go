// Package memory provides an in-process entitlement cache.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
)

// DefaultNamespace prefixes every cache key.
const DefaultNamespace = "entitlement"

// Cache is a process-wide map of entitlements guarded by one mutex, which
// makes Debit a single read-modify-write.
type Cache struct {
	mu        sync.Mutex
	namespace string
	entries   map[string]*entitlement.Entitlement
}

var _ entitlement.Cache = (*Cache)(nil)

// New creates an empty cache. An empty namespace uses DefaultNamespace.
func New(namespace string) *Cache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Cache{
		namespace: namespace,
		entries:   make(map[string]*entitlement.Entitlement),
	}
}

func (c *Cache) key(userID string) string { return c.namespace + "_" + userID }

func (c *Cache) Get(_ context.Context, userID string) (*entitlement.Entitlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[c.key(userID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", credits.ErrCacheMiss, userID)
	}
	return e.Clone(), nil
}

func (c *Cache) Set(_ context.Context, e *entitlement.Entitlement) error {
	if e == nil || e.UserID == "" {
		return credits.ValidationError{Field: "user_id", Message: "must not be empty"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[c.key(e.UserID)] = e.Clone()
	return nil
}

func (c *Cache) Debit(_ context.Context, userID string) (*entitlement.Entitlement, entitlement.DebitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[c.key(userID)]
	switch {
	case !ok:
		return nil, entitlement.Exhausted, fmt.Errorf("%w: %s", credits.ErrCacheMiss, userID)
	case e.IsPremium():
		return e.Clone(), entitlement.Unmetered, nil
	case e.CreditsRemaining <= 0:
		return e.Clone(), entitlement.Exhausted, nil
	}

	e.CreditsRemaining--
	return e.Clone(), entitlement.Debited, nil
}

func (c *Cache) Update(_ context.Context, userID string, fn func(*entitlement.Entitlement) error) (*entitlement.Entitlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.key(userID)
	e, ok := c.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", credits.ErrCacheMiss, userID)
	}

	next := e.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	c.entries[key] = next
	return next.Clone(), nil
}

func (c *Cache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, c.key(userID))
	return nil
}

// Len returns the number of cached entitlements.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
