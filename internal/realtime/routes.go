package realtime

import (
	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/cineforum/internal/users"
)

// RegisterRoutes mounts the websocket change feed at /ws. A session is
// required; the token may be passed as the token query parameter.
func RegisterRoutes(r chi.Router, hub *Hub) {
	r.With(users.RequireUser).Get("/ws", hub.ServeWS)
}
