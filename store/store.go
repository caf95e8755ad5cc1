// Package store defines the remote store contract shared by all backends.
package store

import (
	"context"

	"github.com/xraph/credits/entitlement"
)

// Store is the durable remote store for entitlement records.
type Store interface {
	// Entitlement methods
	GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error)
	PutEntitlement(ctx context.Context, e *entitlement.Entitlement) error
	PutEntitlements(ctx context.Context, batch []*entitlement.Entitlement) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
