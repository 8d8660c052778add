package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// A nil CheckOrigin only accepts same-origin upgrades.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamPortfolio upgrades to a websocket and pushes the user's valuation
// immediately and then every StreamInterval until the client goes away.
func (h *Handler) StreamPortfolio(w http.ResponseWriter, r *http.Request, user Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	// Clients never send anything; reading only notices the disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.StreamInterval)
	defer ticker.Stop()

	for {
		if err := h.pushValuation(r.Context(), conn, user.UserID); err != nil {
			log.Printf("Failed to send valuation to user %d: %v", user.UserID, err)
			return
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) pushValuation(ctx context.Context, conn *websocket.Conn, userID int) error {
	v, err := h.Trading.Portfolio(ctx, userID)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
