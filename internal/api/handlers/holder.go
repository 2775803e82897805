package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/api/middleware"
	"github.com/PxPatel/p2p-swap/internal/api/models"
	"github.com/PxPatel/p2p-swap/internal/assets"
	"github.com/PxPatel/p2p-swap/internal/types"
)

// TradeService is the lifecycle surface the handlers drive
type TradeService interface {
	Create(ctx context.Context, creatorWallet, counterpartyWallet string, creatorOffer, counterpartyOffer types.TradeOffer) (*types.Trade, error)
	Accept(ctx context.Context, tradeID, actingWallet string) (*types.Trade, error)
	Reject(ctx context.Context, tradeID, actingWallet string) (*types.Trade, error)
	Complete(ctx context.Context, tradeID, actingWallet, settlementRef string) (*types.Trade, error)
	GetByID(ctx context.Context, tradeID string) (*types.Trade, bool, error)
	GetByWallet(ctx context.Context, wallet string) ([]*types.Trade, error)
	Ping(ctx context.Context) error
}

// Subscriber hands out per-wallet event feeds
type Subscriber interface {
	Subscribe(wallet string) (<-chan types.TradeEvent, func())
}

// StreamObserver is told when trade streams open and close
type StreamObserver interface {
	StreamOpened()
	StreamClosed()
}

// TradeHolder carries the handler dependencies
type TradeHolder struct {
	Service TradeService
	Assets  *assets.Client
	Events  Subscriber
	Streams StreamObserver
	Version string

	startTime time.Time
}

// NewTradeHolder creates a new trade holder. assets, events and streams may be nil.
func NewTradeHolder(service TradeService, assetsClient *assets.Client, events Subscriber, streams StreamObserver) *TradeHolder {
	return &TradeHolder{
		Service:   service,
		Assets:    assetsClient,
		Events:    events,
		Streams:   streams,
		Version:   "1.0.0",
		startTime: time.Now(),
	}
}

// writeJSON writes a success body
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, r *http.Request, httpErr *models.HTTPError) {
	logger.Warn("Request failed", map[string]interface{}{
		"request_id": middleware.RequestIDFromContext(r.Context()),
		"error_code": httpErr.Body.Code,
		"status":     httpErr.StatusCode,
		"path":       r.URL.Path,
	})
	httpErr.Write(w)
}

// NotFoundHandler answers unknown routes in the API's error format
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeErrorResponse(w, r, models.ErrNotFound("Route not found"))
}

// MethodNotAllowedHandler answers known routes called with the wrong method
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeErrorResponse(w, r, models.ErrMethod())
}
