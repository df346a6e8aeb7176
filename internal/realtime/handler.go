package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"

	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
	"flock/pkg/platform/middleware/auth"
	"flock/pkg/requestcontext"
)

// ServeHTTP upgrades the request. A credential may come from the
// Authorization header, the token query parameter, or a later auth frame.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	closing := b.closing
	b.mu.RUnlock()
	if closing {
		w.Header().Set("Retry-After", "5")
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "real-time channel is shutting down"))
		return
	}

	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := newClient(b, conn)
	if !b.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}

	ctx := requestcontext.Detach(r.Context())
	if token != "" {
		c.authenticate(ctx, token)
	}
	go c.writePump()
	go c.readPump(ctx)
}
