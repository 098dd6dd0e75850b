package models

import (
	"github.com/google/uuid"
)

// SessionActionRecord captures one transition of a game session for the action history.
type SessionActionRecord struct {
	SessionID   uuid.UUID              `json:"session_id"`
	ChannelID   string                 `json:"channel_id"`
	Kind        string                 `json:"kind"`
	ActionIndex int                    `json:"action_index"`
	ActorUserID string                 `json:"actor_user_id,omitempty"`
	ActionType  string                 `json:"action_type"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   int64                  `json:"timestamp"` // epoch millis
}

// Action types written by sessions. session_end finalizes the history row.
const (
	ActionSessionCreate = "session_create"
	ActionPlayerJoin    = "player_join"
	ActionPlayerLeave   = "player_leave"
	ActionSessionStart  = "session_start"
	ActionPlayerAct     = "player_action"
	ActionPlayerInvalid = "player_action_invalid"
	ActionTurnTimeout   = "turn_timeout"
	ActionSessionEnd    = "session_end"
)
