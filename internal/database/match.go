// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MatchResult is the persisted summary of a completed session.
type MatchResult struct {
	SessionID     uuid.UUID
	Category      string
	Pace          string
	Private       bool
	TopicSelector int
	ForHandle     string
	AgainstHandle string
	ForScore      int
	AgainstScore  int
	Winner        string // "for", "against", or "tie"
	Reasoning     string
	VerdictSource string // "judge" or "fallback"
}

// InsertMatchResult records a completed session's outcome.
func InsertMatchResult(ctx context.Context, res MatchResult) error {
	q := `
	INSERT INTO matches (id, category, pace, private, topic_selector,
	                     for_handle, against_handle, for_score, against_score,
	                     winner, reasoning, verdict_source)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			res.SessionID, res.Category, res.Pace, res.Private, res.TopicSelector,
			res.ForHandle, res.AgainstHandle, res.ForScore, res.AgainstScore,
			res.Winner, res.Reasoning, res.VerdictSource,
		)
		return err
	})
}

// CommitRankedResult applies a ranked outcome atomically: both Elo values,
// the win/loss tallies, and a rating journal row per side. A tie updates
// ratings only.
func CommitRankedResult(ctx context.Context, sessionID uuid.UUID, winner, loser string, oldW, oldL, newW, newL int, tie bool) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		winQ := `UPDATE users SET elo=$1, ranked_wins=ranked_wins+1 WHERE handle=$2`
		loseQ := `UPDATE users SET elo=$1, ranked_losses=ranked_losses+1 WHERE handle=$2`
		if tie {
			winQ = `UPDATE users SET elo=$1 WHERE handle=$2`
			loseQ = winQ
		}
		if _, err := tx.Exec(ctx, winQ, newW, winner); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, loseQ, newL, loser); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO ratings (handle, match_id, old_rating, new_rating)
			VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)
		`,
			winner, sessionID, oldW, newW,
			loser, sessionID, oldL, newL,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to commit ranked result: %w", err)
	}
	return nil
}

// TurnRow is one transcript entry persisted by the historian.
type TurnRow struct {
	SessionID uuid.UUID
	TurnIndex int
	Handle    string
	Stance    string
	Content   string
	Elapsed   int
	Timeout   bool
}

// InsertTurns batch-inserts transcript rows. Rows for sessions the matches
// table has never seen are still accepted; transcripts and results arrive
// on independent paths.
func InsertTurns(ctx context.Context, rows []TurnRow) error {
	if len(rows) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(ctx, `
				INSERT INTO match_turns (match_id, turn_index, handle, stance, content, elapsed, timed_out)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (match_id, turn_index) DO NOTHING
			`, r.SessionID, r.TurnIndex, r.Handle, r.Stance, r.Content, r.Elapsed, r.Timeout)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkMatchAbandoned flags a match whose transcript stream went quiet
// without a completion row.
func MarkMatchAbandoned(ctx context.Context, sessionID uuid.UUID) error {
	q := `UPDATE matches SET winner='abandoned' WHERE id=$1 AND winner IS NULL`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, sessionID)
		return err
	})
}
