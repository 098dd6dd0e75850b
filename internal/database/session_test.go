package database

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/beezo-bot/beezo/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

// fakeTx records Exec calls. Methods it does not override panic through the nil embedded Tx.
type fakeTx struct {
	pgx.Tx
	calls      []execCall
	failOn     string
	tag        string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.NewCommandTag(f.tag), nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

func (f *fakeTx) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return f, nil
}

func record(actionType string, payload map[string]interface{}) models.SessionActionRecord {
	return models.SessionActionRecord{
		SessionID:   uuid.MustParse("6f1c1f8e-2f43-4c55-9b0f-0c8f7f4b7c11"),
		ChannelID:   "chan",
		Kind:        "uno",
		ActionIndex: 4,
		ActorUserID: "u1",
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   1700000000000,
	}
}

func TestInsertSessionActionTx(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, InsertSessionActionTx(context.Background(), tx, record(models.ActionPlayerAct, nil)))

	require.Len(t, tx.calls, 2, "upsert session, insert action")
	assert.Contains(t, tx.calls[0].sql, "INSERT INTO sessions")
	assert.Contains(t, tx.calls[1].sql, "INSERT INTO session_actions")
	assert.Equal(t, 4, tx.calls[1].args[1])
	assert.JSONEq(t, `{}`, string(tx.calls[1].args[4].([]byte)))
}

func TestSessionEndFinalizes(t *testing.T) {
	tx := &fakeTx{}
	rec := record(models.ActionSessionEnd, map[string]interface{}{"reason": "won", "winner": "u1"})
	require.NoError(t, InsertSessionActionTx(context.Background(), tx, rec))

	require.Len(t, tx.calls, 3)
	final := tx.calls[2]
	assert.Contains(t, final.sql, "UPDATE sessions")
	assert.Equal(t, "won", final.args[1])
	assert.Equal(t, "u1", final.args[2])

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(tx.calls[1].args[4].([]byte), &payload))
	assert.Equal(t, "won", payload["reason"])
}

func TestInsertSessionActionsCommitsBatch(t *testing.T) {
	tx := &fakeTx{}
	recs := []models.SessionActionRecord{record(models.ActionSessionCreate, nil), record(models.ActionPlayerJoin, nil)}
	require.NoError(t, InsertSessionActions(context.Background(), tx, recs))
	assert.True(t, tx.committed)
	assert.Len(t, tx.calls, 4)
}

func TestInsertSessionActionsRollsBack(t *testing.T) {
	tx := &fakeTx{failOn: "session_actions"}
	err := InsertSessionActions(context.Background(), tx, []models.SessionActionRecord{record(models.ActionPlayerAct, nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#4")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestInsertSessionActionsEmptyBatch(t *testing.T) {
	assert.NoError(t, InsertSessionActions(context.Background(), nil, nil))
}

func TestMarkSessionAbandoned(t *testing.T) {
	tx := &fakeTx{tag: "UPDATE 1"}
	changed, err := MarkSessionAbandoned(context.Background(), tx, uuid.New())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, tx.calls[0].sql, "'abandoned'")

	tx = &fakeTx{tag: "UPDATE 0"}
	changed, err = MarkSessionAbandoned(context.Background(), tx, uuid.New())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMigrate(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, Migrate(context.Background(), tx))
	assert.Contains(t, tx.calls[0].sql, "CREATE TABLE IF NOT EXISTS session_actions")

	assert.Error(t, Migrate(context.Background(), &fakeTx{failOn: "CREATE"}))
}
