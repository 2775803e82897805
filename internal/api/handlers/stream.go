package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/api/middleware"
	"github.com/PxPatel/p2p-swap/internal/api/models"
	"github.com/PxPatel/p2p-swap/internal/types"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cross-origin access is governed by the CORS policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TradeStreamHandler handles GET /trades/stream?wallet=. It upgrades to a
// websocket and pushes an event each time a trade involving wallet is created
// or changes status. Client messages are ignored.
func (th *TradeHolder) TradeStreamHandler(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeErrorResponse(w, r, models.NewHTTPError(http.StatusBadRequest, models.ErrInvalidWallet, "Wallet address is required").WithField("wallet"))
		return
	}
	if th.Events == nil {
		writeErrorResponse(w, r, models.NewHTTPError(http.StatusServiceUnavailable, models.ErrServiceUnavailable, "Trade stream is not enabled"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		return
	}
	defer conn.Close()

	events, cancel := th.Events.Subscribe(wallet)
	defer cancel()

	if th.Streams != nil {
		th.Streams.StreamOpened()
		defer th.Streams.StreamClosed()
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	logger.Info("Trade stream opened", map[string]interface{}{
		"request_id": requestID,
		"wallet":     types.FormatWalletAddress(wallet),
	})

	// Reader: answers pongs and notices when the client goes away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			logger.Info("Trade stream closed", map[string]interface{}{"request_id": requestID})
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(models.NewTradeEventMessage(event)); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
