// Package memory provides an in-memory remote store for tests and
// single-process deployments. Records are kept as JSON documents, so a
// malformed document behaves exactly as it would in a real document store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	creditsstore "github.com/xraph/credits/store"
)

// compile-time interface check
var _ creditsstore.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	documents map[string][]byte
	closed    bool
}

func New() *Store {
	return &Store{
		documents: make(map[string][]byte),
	}
}

func (s *Store) GetEntitlement(_ context.Context, userID string) (*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}

	doc, ok := s.documents[userID]
	if !ok {
		return nil, credits.ErrNotFound
	}

	e, err := entitlement.Decode(userID, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", credits.ErrMalformedRecord, err)
	}
	return e, nil
}

func (s *Store) PutEntitlement(_ context.Context, e *entitlement.Entitlement) error {
	doc, err := entitlement.Encode(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return credits.ErrStoreClosed
	}
	s.documents[e.UserID] = doc
	return nil
}

func (s *Store) PutEntitlements(_ context.Context, batch []*entitlement.Entitlement) error {
	docs := make(map[string][]byte, len(batch))
	for _, e := range batch {
		doc, err := entitlement.Encode(e)
		if err != nil {
			return err
		}
		docs[e.UserID] = doc
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return credits.ErrStoreClosed
	}
	for userID, doc := range docs {
		s.documents[userID] = doc
	}
	return nil
}

// PutDocument stores a raw document for userID without validation.
func (s *Store) PutDocument(userID string, doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[userID] = append([]byte(nil), doc...)
}

// Document returns the raw document stored for userID.
func (s *Store) Document(userID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[userID]
	return append([]byte(nil), doc...), ok
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Stored documents are kept.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
