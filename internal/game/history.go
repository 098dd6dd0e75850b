// internal/game/history.go
package game

import (
	"context"
	"time"

	"github.com/beezo-bot/beezo/internal/models"
)

// ActionLog receives every session transition. Implementations must be safe for concurrent use.
type ActionLog interface {
	RecordAction(ctx context.Context, rec models.SessionActionRecord) error
}

// historyTimeout bounds a single history publish.
const historyTimeout = 2 * time.Second

// logAction appends a record to the action history without blocking the caller.
// Assumes the session lock is held.
func (s *Session) logAction(actorID, actionType string, payload map[string]interface{}) {
	s.actionIndex++
	if s.history == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	rec := models.SessionActionRecord{
		SessionID:   s.ID,
		ChannelID:   s.ChannelID,
		Kind:        string(s.Kind),
		ActionIndex: s.actionIndex,
		ActorUserID: actorID,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   s.clock().UnixMilli(),
	}
	go func(rec models.SessionActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := s.history.RecordAction(ctx, rec); err != nil {
			s.logger.WithError(err).WithField("action_index", rec.ActionIndex).Warn("failed to record session action")
		}
	}(rec)
}
