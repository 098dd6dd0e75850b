// internal/handlers/feed_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/beezo-bot/beezo/internal/auth"
	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// FeedWSHandler streams a channel's game announcements to an observer holding a feed token
// for that channel. Route it as "GET /feed/ws/{channelID}".
func FeedWSHandler(logger logrus.FieldLogger, hub *FeedHub, signer *auth.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID := r.PathValue("channelID")
		if channelID == "" {
			http.Error(w, "missing channel id", http.StatusBadRequest)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			if c, err := r.Cookie("feed_token"); err == nil {
				token = c.Value
			}
		}
		claims, err := signer.ParseFeedToken(token)
		if err != nil {
			http.Error(w, "invalid feed token", http.StatusUnauthorized)
			return
		}
		if claims.Channel != channelID {
			http.Error(w, "token is not valid for this channel", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept error")
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		log := logger.WithFields(logrus.Fields{"remote": r.RemoteAddr, "channel": channelID, "user": claims.Subject})
		log.Info("feed observer connected")

		events, unsubscribe := hub.Subscribe(channelID)
		defer unsubscribe()

		// Observers never send; CloseRead handles control frames and cancels ctx on close.
		ctx := c.CloseRead(r.Context())
		err = writeFeed(ctx, c, events)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway || ctx.Err() != nil {
			log.Info("feed observer disconnected")
			return
		}
		log.WithError(err).Warn("feed observer dropped")
	}
}

func writeFeed(ctx context.Context, c *websocket.Conn, events <-chan FeedEvent) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
