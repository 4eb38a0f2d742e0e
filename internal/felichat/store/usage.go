package store

import (
	"context"
	"fmt"
	"time"
)

// TurnUsage is one row of the per-turn accounting ledger.
type TurnUsage struct {
	SessionID  string
	Seq        int
	Status     string
	Compacted  bool
	TokensUsed int
	CreatedAt  time.Time
}

// SessionTotals aggregates a session's ledger rows.
type SessionTotals struct {
	Turns      int
	Compacted  int
	TokensUsed int
}

// RecordTurn appends one usage row.
func (s *Store) RecordTurn(ctx context.Context, u TurnUsage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turn_usage (session_id, seq, status, compacted, tokens_used)
		VALUES (?, ?, ?, ?, ?)`,
		u.SessionID, u.Seq, u.Status, u.Compacted, u.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("record turn usage: %w", err)
	}
	return nil
}

// Totals returns the aggregated ledger for one session.
func (s *Store) Totals(ctx context.Context, sessionID string) (SessionTotals, error) {
	var t SessionTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(compacted), 0),
		       COALESCE(SUM(tokens_used), 0)
		FROM turn_usage WHERE session_id = ?`,
		sessionID,
	).Scan(&t.Turns, &t.Compacted, &t.TokensUsed)
	if err != nil {
		return SessionTotals{}, fmt.Errorf("query session totals: %w", err)
	}
	return t, nil
}
