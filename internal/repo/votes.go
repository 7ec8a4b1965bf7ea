package repo

import (
	"context"
	"database/sql"
	"time"
)

// AddVote records a vote for (entityKind, entityID) by userID. Re-voting is
// a no-op; the unique key makes the insert idempotent. Returns the vote
// count after the call.
func (r Repo) AddVote(ctx context.Context, tx *sql.Tx, entityKind, entityID, userID string, now time.Time) (int, error) {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO votes(entity_kind, entity_id, user_id, created_at) VALUES (?,?,?,?)`,
		entityKind, entityID, userID, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return r.CountVotesTx(ctx, tx, entityKind, entityID)
}

func (r Repo) CountVotesTx(ctx context.Context, tx *sql.Tx, entityKind, entityID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM votes WHERE entity_kind=? AND entity_id=?`, entityKind, entityID).Scan(&n)
	return n, err
}

func (r Repo) HasVoted(ctx context.Context, entityKind, entityID, userID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM votes WHERE entity_kind=? AND entity_id=? AND user_id=? LIMIT 1`,
		entityKind, entityID, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ListVoters returns the identities that voted for (entityKind, entityID),
// oldest vote first.
func (r Repo) ListVoters(ctx context.Context, entityKind, entityID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM votes WHERE entity_kind=? AND entity_id=? ORDER BY created_at ASC, user_id ASC`,
		entityKind, entityID)
	if err != nil {
		return nil, err
	}
	return scanVoters(rows)
}

func (r Repo) ListVotersTx(ctx context.Context, tx *sql.Tx, entityKind, entityID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT user_id FROM votes WHERE entity_kind=? AND entity_id=? ORDER BY created_at ASC, user_id ASC`,
		entityKind, entityID)
	if err != nil {
		return nil, err
	}
	return scanVoters(rows)
}

func scanVoters(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
