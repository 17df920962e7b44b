// Package history is the append-only audit ledger of file creations and
// deletions. Rows are only ever inserted.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Action is the kind of change a Record describes.
type Action string

// Recorded actions.
const (
	ActionCreated Action = "created"
	ActionDeleted Action = "deleted"
)

// Record is one ledger entry.
type Record struct {
	ID        int64     `json:"id"`
	Version   string    `json:"version"`
	Action    Action    `json:"action"`
	UserID    int64     `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrWriteFailed wraps every failure to append a record.
var ErrWriteFailed = errors.New("audit ledger write failed")

// querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository appends ledger records to the file_history table.
type Repository struct {
	db querier
}

// NewRepository creates a new Repository on the given pool or connection.
func NewRepository(db querier) *Repository {
	return &Repository{db: db}
}

// RecordCreated appends a created record for version by userID.
func (r *Repository) RecordCreated(ctx context.Context, version string, userID int64) (*Record, error) {
	return r.append(ctx, version, ActionCreated, userID)
}

// RecordDeleted appends a deleted record for version by userID.
func (r *Repository) RecordDeleted(ctx context.Context, version string, userID int64) (*Record, error) {
	return r.append(ctx, version, ActionDeleted, userID)
}

func (r *Repository) append(ctx context.Context, version string, action Action, userID int64) (*Record, error) {
	rec := &Record{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO file_history (version, action, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, version, action, user_id, timestamp`,
		version, string(action), userID,
	).Scan(&rec.ID, &rec.Version, &rec.Action, &rec.UserID, &rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrWriteFailed, action, version, err)
	}
	return rec, nil
}
