package main

import (
	"context"
	"database/sql"

	consentservice "healthcommons/internal/consent/service"
	consentstore "healthcommons/internal/consent/store"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/tx"
)

// consentPostgresTx runs consent mutations in one Postgres transaction. A
// transaction-scoped advisory lock on the grantor serializes version bumps
// across replicas the same way the in-memory shards do within one process.
type consentPostgresTx struct {
	db    *sql.DB
	store *consentstore.PostgresStore
}

func newConsentPostgresTx(db *sql.DB, store *consentstore.PostgresStore) *consentPostgresTx {
	return &consentPostgresTx{db: db, store: store}
}

func (t *consentPostgresTx) RunInTx(ctx context.Context, grantor id.AgentID, fn func(ctx context.Context, store consentservice.Store) error) error {
	return tx.Run(ctx, t.db, nil, func(ctx context.Context, sqlTx *sql.Tx) error {
		if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, grantor.String()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock grantor consents")
		}
		return fn(ctx, t.store)
	})
}
