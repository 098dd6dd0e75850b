package game

import (
	"context"
	"time"
)

// ChannelSpec describes an ephemeral channel a game wants for its lifetime.
type ChannelSpec struct {
	GuildID  string
	ParentID string
	Name     string
	Topic    string
	Rules    []PermissionRule
}

// PermissionTarget is who a PermissionRule applies to.
type PermissionTarget string

const (
	TargetEveryone PermissionTarget = "everyone"
	TargetMember   PermissionTarget = "member"
)

// PermissionRule grants or denies channel visibility and posting to a target.
// For TargetEveryone the ID is the guild id.
type PermissionRule struct {
	Target    PermissionTarget
	ID        string
	AllowView bool
	AllowSend bool
	DenyView  bool
}

// ChannelManager is the chat platform's channel lifecycle capability.
type ChannelManager interface {
	CreateChannel(ctx context.Context, spec ChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	SetPermissions(ctx context.Context, channelID string, rules []PermissionRule) error
}

// Event is one inbound chat message or structured player action.
type Event struct {
	ChannelID string
	UserID    string
	UserName  string
	MessageID string
	Content   string
	Bot       bool
	Timestamp time.Time
}

// EventSource delivers inbound events for one channel until unsubscribe is called.
type EventSource interface {
	Subscribe(channelID string, fn func(Event)) (unsubscribe func())
}
