package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner opens tenant-scoped transactions. The interface exists so
// services can be exercised against a fake in tests.
type TxRunner interface {
	WithTenant(ctx context.Context, tenantID string, fn func(tx pgx.Tx) error) error
}

// Sessions hands out transactions whose statements are restricted by the
// storage engine's row-security policies to one tenant partition.
type Sessions struct {
	pool *pgxpool.Pool
}

func NewSessions(pool *pgxpool.Pool) *Sessions {
	return &Sessions{pool: pool}
}

// WithTenant runs fn inside a transaction carrying the tenant marker.
// set_config with is_local=true scopes the marker to the transaction, so it
// can never leak across pooled-connection reuse. An empty tenantID opens the
// session without a marker; the row policies then deny everything except
// rows explicitly granted cross-tenant.
//
// fn returning an error rolls the whole transaction back.
func (s *Sessions) WithTenant(ctx context.Context, tenantID string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if tenantID != "" {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
			return fmt.Errorf("set tenant marker: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
