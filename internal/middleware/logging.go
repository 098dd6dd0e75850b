// internal/middleware/logging.go

package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/beezo-bot/beezo/internal/handlers"
	"github.com/sirupsen/logrus"
)

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Logs the method, path, status and duration of each request.
func LogMiddleware(logger logrus.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http.ResponseWriter does not implement http.Hijacker")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// LogCommand wraps a command handler, logging every invocation with its outcome.
func LogCommand(logger logrus.FieldLogger, next handlers.CommandHandler) handlers.CommandHandler {
	return handlers.CommandHandlerFunc(func(ctx context.Context, cmd handlers.Command) handlers.Reply {
		start := time.Now()
		reply := next.Handle(ctx, cmd)

		logger.WithFields(logrus.Fields{
			"game":     cmd.Game,
			"sub":      cmd.Sub,
			"user":     cmd.UserID,
			"channel":  cmd.ChannelID,
			"duration": time.Since(start),
		}).Info("Command")
		return reply
	})
}
