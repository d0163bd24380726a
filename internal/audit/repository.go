package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savegress/medledger/pkg/models"
)

// Repository persists audit events to Postgres
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects to databaseURL and ensures the trail table
// exists.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &Repository{pool: pool}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ledger_operation_events (
			id UUID PRIMARY KEY,
			operation_id UUID NOT NULL,
			kind VARCHAR(32) NOT NULL,
			account VARCHAR(42) NOT NULL,
			tx_hash VARCHAR(66),
			state VARCHAR(32) NOT NULL,
			detail TEXT,
			recorded TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_operation_events_operation
			ON ledger_operation_events (operation_id, recorded);
		CREATE INDEX IF NOT EXISTS idx_operation_events_account
			ON ledger_operation_events (account, recorded)`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// SaveEvent inserts one audit event
func (r *Repository) SaveEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO ledger_operation_events (
			id, operation_id, kind, account, tx_hash, state, detail, recorded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.OperationID, string(event.Kind), event.Account,
		event.TxHash, string(event.State), event.Detail, event.Recorded,
	)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// OperationEvents returns the trail for one operation, oldest first
func (r *Repository) OperationEvents(ctx context.Context, operationID string) ([]*Event, error) {
	query := `
		SELECT id, operation_id, kind, account, tx_hash, state, detail, recorded
		FROM ledger_operation_events
		WHERE operation_id = $1
		ORDER BY recorded ASC`

	rows, err := r.pool.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("query operation events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// AccountEvents returns the most recent trail entries for an account
func (r *Repository) AccountEvents(ctx context.Context, account string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, operation_id, kind, account, tx_hash, state, detail, recorded
		FROM ledger_operation_events
		WHERE LOWER(account) = LOWER($1)
		ORDER BY recorded DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query account events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var e Event
		var kind, state string
		if err := rows.Scan(&e.ID, &e.OperationID, &kind, &e.Account, &e.TxHash, &state, &e.Detail, &e.Recorded); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Kind = models.OperationKind(kind)
		e.State = models.OperationState(state)
		events = append(events, &e)
	}
	return events, rows.Err()
}
