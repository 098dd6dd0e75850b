package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beezo-bot/beezo/internal/handlers"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddlewareRecordsStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "HTTP Request", entry.Message)
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, "/sessions", entry.Data["path"])
}

func TestLogCommand(t *testing.T) {
	logger, hook := test.NewNullLogger()
	next := handlers.CommandHandlerFunc(func(ctx context.Context, cmd handlers.Command) handlers.Reply {
		return handlers.Reply{Content: "ok", Ephemeral: true}
	})

	reply := LogCommand(logger, next).Handle(context.Background(), handlers.Command{Game: "uno", Sub: "join", UserID: "u1", ChannelID: "c1"})
	assert.Equal(t, "ok", reply.Content)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "join", entry.Data["sub"])
	assert.Equal(t, "u1", entry.Data["user"])
}
