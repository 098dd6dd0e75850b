// internal/handlers/sessions.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/beezo-bot/beezo/internal/game"
)

// ListSessionsHandler returns a JSON snapshot of every live session.
func ListSessionsHandler(registry *game.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sessions := registry.List()
		if sessions == nil {
			sessions = []game.Snapshot{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(sessions); err != nil {
			http.Error(w, "failed to encode sessions", http.StatusInternalServerError)
		}
	}
}
