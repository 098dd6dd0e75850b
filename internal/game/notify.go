// internal/game/notify.go
package game

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// NotificationKind says which messaging capability a Notification is meant for.
type NotificationKind string

const (
	NotifyChannel NotificationKind = "channel"
	NotifyDirect  NotificationKind = "direct"
	NotifyDelete  NotificationKind = "delete"
)

// Notification is an outbound side effect decided by a session. The session never talks to the
// chat platform itself; it returns these and the caller (or the async delivery path) sends them.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	ChannelID string           `json:"channel_id,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
	MessageID string           `json:"message_id,omitempty"`
	Content   string           `json:"content,omitempty"`
}

// ToChannel builds a channel text notification.
func ToChannel(channelID, content string) Notification {
	return Notification{Kind: NotifyChannel, ChannelID: channelID, Content: content}
}

// ToUser builds a direct message notification.
func ToUser(userID, content string) Notification {
	return Notification{Kind: NotifyDirect, UserID: userID, Content: content}
}

// DeleteMessage builds a message deletion notification.
func DeleteMessage(channelID, messageID string) Notification {
	return Notification{Kind: NotifyDelete, ChannelID: channelID, MessageID: messageID}
}

// Messenger is the chat platform's messaging capability.
type Messenger interface {
	SendToChannel(ctx context.Context, channelID, content string) error
	SendDirect(ctx context.Context, userID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Observer receives every delivered notification. The live feed registers one.
type Observer interface {
	Observe(n Notification)
}

// deliveryTimeout bounds each individual send.
const deliveryTimeout = 5 * time.Second

// Deliver sends notifications in order. Delivery is best effort: failures are logged and the
// remaining notifications are still sent.
func Deliver(ctx context.Context, m Messenger, logger logrus.FieldLogger, notes []Notification, observers ...Observer) {
	for _, n := range notes {
		for _, o := range observers {
			if o != nil {
				o.Observe(n)
			}
		}
		if m == nil {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		var err error
		switch n.Kind {
		case NotifyChannel:
			err = m.SendToChannel(sendCtx, n.ChannelID, n.Content)
		case NotifyDirect:
			err = m.SendDirect(sendCtx, n.UserID, n.Content)
		case NotifyDelete:
			err = m.DeleteMessage(sendCtx, n.ChannelID, n.MessageID)
		default:
			logger.Warnf("unknown notification kind %q", n.Kind)
		}
		cancel()

		if err != nil {
			logger.WithFields(logrus.Fields{
				"kind":    n.Kind,
				"channel": n.ChannelID,
				"user":    n.UserID,
			}).WithError(err).Warn("notification delivery failed")
		}
	}
}
