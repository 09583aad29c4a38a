// Package ledger holds the privacy budget ledger backends. Every backend
// serializes read-validate-debit-persist per (patient, pool) key: a sharded
// mutex in memory, a row lock in Postgres, WATCH/MULTI in Redis.
package ledger

import (
	"context"
	"time"

	"healthcommons/internal/privacy/models"
)

// TxStore is the view of the ledger inside a serialized section.
type TxStore interface {
	// FindOrCreate returns the entry for key, creating it under policy when absent.
	FindOrCreate(ctx context.Context, key models.LedgerKey, policy models.Policy, now time.Time) (*models.LedgerEntry, error)
	// Save persists entry. Must be called at most once per section.
	Save(ctx context.Context, entry *models.LedgerEntry) error
}

// TxFunc runs inside the serialized section for a key. Returning an error
// discards every write made through store. The Redis backend runs fn again
// after losing an optimistic race, so fn must not act outside store.
type TxFunc func(ctx context.Context, store TxStore) error
