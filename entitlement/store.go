package entitlement

import "context"

// Repository is the durable, cross-device store. It is an opaque document
// store keyed by user id; a missing record is reported as an error wrapping
// credits.ErrNotFound and an unparseable one as credits.ErrMalformedRecord.
type Repository interface {
	GetEntitlement(ctx context.Context, userID string) (*Entitlement, error)
	PutEntitlement(ctx context.Context, e *Entitlement) error
}

// BatchRepository is implemented by backends that can upsert many records in
// one round trip.
type BatchRepository interface {
	Repository
	PutEntitlements(ctx context.Context, batch []*Entitlement) error
}

// Cache is the process-wide local cache and the source of truth for the
// running session. Entries are overwritten wholesale by Set.
type Cache interface {
	// Get returns a copy of the cached record or an error wrapping
	// credits.ErrCacheMiss.
	Get(ctx context.Context, userID string) (*Entitlement, error)
	Set(ctx context.Context, e *Entitlement) error
	// Debit atomically takes one credit if the balance is positive. Premium
	// records are never modified. It returns the record after the operation.
	Debit(ctx context.Context, userID string) (*Entitlement, DebitResult, error)
	// Update applies fn to the cached record atomically with respect to
	// Debit and other updates, and returns the stored result. A missing
	// entry returns an error wrapping credits.ErrCacheMiss.
	Update(ctx context.Context, userID string, fn func(*Entitlement) error) (*Entitlement, error)
	Delete(ctx context.Context, userID string) error
}
