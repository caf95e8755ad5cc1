package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	creditsstore "github.com/xraph/credits/store"
)

// compile-time interface check
var _ creditsstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("credits/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("credits/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Entitlement Store ====================

func (s *Store) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	m := new(entitlementModel)
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrNotFound
		}
		return nil, err
	}

	e, err := fromEntitlementModel(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", credits.ErrMalformedRecord, err)
	}
	return e, nil
}

func (s *Store) PutEntitlement(ctx context.Context, e *entitlement.Entitlement) error {
	_, err := s.pg.NewInsert(toEntitlementModel(e)).
		OnConflict("(user_id) DO UPDATE").
		Set("tier = EXCLUDED.tier").
		Set("credits_remaining = EXCLUDED.credits_remaining").
		Set("last_renewal_date = EXCLUDED.last_renewal_date").
		Set("is_yearly = EXCLUDED.is_yearly").
		Set("region = EXCLUDED.region").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) PutEntitlements(ctx context.Context, batch []*entitlement.Entitlement) error {
	if len(batch) == 0 {
		return nil
	}

	models := make([]entitlementModel, len(batch))
	for i, e := range batch {
		models[i] = *toEntitlementModel(e)
	}

	_, err := s.pg.NewInsert(&models).
		OnConflict("(user_id) DO UPDATE").
		Set("tier = EXCLUDED.tier").
		Set("credits_remaining = EXCLUDED.credits_remaining").
		Set("last_renewal_date = EXCLUDED.last_renewal_date").
		Set("is_yearly = EXCLUDED.is_yearly").
		Set("region = EXCLUDED.region").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
