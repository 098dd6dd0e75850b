// internal/database/session.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beezo-bot/beezo/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const (
	upsertSessionQ = `
		INSERT INTO sessions (id, channel_id, kind, status, start_time)
		VALUES ($1, $2, $3, 'in_progress', $4)
		ON CONFLICT (id) DO NOTHING
	`
	insertActionQ = `
		INSERT INTO session_actions (
			session_id, action_index, actor_user_id, action_type, action_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, action_index) DO NOTHING
	`
	finalizeSessionQ = `
		UPDATE sessions
		SET status = 'completed', end_reason = $2, winner_id = NULLIF($3, ''), end_time = $4
		WHERE id = $1 AND status = 'in_progress'
	`
	abandonSessionQ = `
		UPDATE sessions
		SET status = 'abandoned', end_reason = 'inactive', end_time = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`
)

// InsertSessionActions writes a batch of records in one transaction.
func InsertSessionActions(ctx context.Context, db TxBeginner, recs []models.SessionActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := InsertSessionActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert action %s#%d: %w", rec.SessionID, rec.ActionIndex, err)
			}
		}
		return nil
	})
}

// InsertSessionActionTx inserts a single action record and upserts its session row. A
// session_end record finalizes the session. Replayed records are ignored.
func InsertSessionActionTx(ctx context.Context, tx Execer, rec models.SessionActionRecord) error {
	at := time.UnixMilli(rec.Timestamp).UTC()
	if _, err := tx.Exec(ctx, upsertSessionQ, rec.SessionID, rec.ChannelID, rec.Kind, at); err != nil {
		return err
	}

	payload := rec.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertActionQ,
		rec.SessionID, rec.ActionIndex, rec.ActorUserID, rec.ActionType, jsonPayload, at,
	); err != nil {
		return err
	}

	if rec.ActionType != models.ActionSessionEnd {
		return nil
	}
	reason, _ := payload["reason"].(string)
	winner, _ := payload["winner"].(string)
	_, err = tx.Exec(ctx, finalizeSessionQ, rec.SessionID, reason, winner, at)
	return err
}

// MarkSessionAbandoned closes a session that is still in progress. It reports whether a row
// changed.
func MarkSessionAbandoned(ctx context.Context, db Execer, sessionID uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, abandonSessionQ, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
