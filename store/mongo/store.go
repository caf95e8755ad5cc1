package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	creditsstore "github.com/xraph/credits/store"
)

// Collection name constants.
const (
	colEntitlements = "credits_entitlements"
)

// compile-time interface check
var _ creditsstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all credits collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("credits/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m entitlementModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get entitlement: %w", err)
	}

	e, err := fromEntitlementModel(&m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", credits.ErrMalformedRecord, err)
	}
	return e, nil
}

func (s *Store) PutEntitlement(ctx context.Context, e *entitlement.Entitlement) error {
	m := toEntitlementModel(e)

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.UserID}).
		SetUpdate(bson.M{"$set": bson.M(m.setDocument())}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: put entitlement: %w", err)
	}
	return nil
}

// PutEntitlements upserts the batch with one unordered bulk write.
func (s *Store) PutEntitlements(ctx context.Context, batch []*entitlement.Entitlement) error {
	if len(batch) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(batch))
	for _, e := range batch {
		m := toEntitlementModel(e)
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": m.UserID}).
			SetUpdate(bson.M{"$set": bson.M(m.setDocument())}).
			SetUpsert(true))
	}

	_, err := s.mdb.Collection(colEntitlements).
		BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("credits/mongo: put entitlements: %w", err)
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all credits collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colEntitlements: {
			{Keys: bson.D{{Key: "tier", Value: 1}}},
			{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		},
	}
}
