// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package signaling

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Signaling server</title></head>
<body>
<h1>Signaling server</h1>
<ul>
<li><code>/ws</code> and <code>/ws/{room_id}</code>: WebSocket signaling endpoints</li>
<li><code>/health</code>: health check</li>
</ul>
</body>
</html>
`

// NewHandler returns the HTTP handler serving the signaling endpoints.
func NewHandler(hub *Hub) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return hub.cfg.originAllowed(r.Header.Get("Origin"))
		},
	}

	serveWS := func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["roomID"]
		if roomID == "" {
			roomID = r.URL.Query().Get("room")
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// upgrader already replied with an error
			hub.logger.Info("websocket upgrade failed", zap.Error(err))

			return
		}

		if _, err = hub.Serve(conn, roomID); err != nil {
			hub.logger.Info("failed to serve client", zap.Error(err))
		}
	}

	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexPage)) //nolint:errcheck
	}).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", serveWS)
	r.HandleFunc("/ws/{roomID}", serveWS)

	// wrapping the router, as mux middlewares don't run for unmatched preflight requests
	return corsMiddleware(hub.cfg)(r)
}

func corsMiddleware(cfg Config) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && cfg.originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
