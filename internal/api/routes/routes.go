package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	"github.com/PxPatel/p2p-swap/internal/api/handlers"
	"github.com/PxPatel/p2p-swap/internal/api/middleware"
	"github.com/PxPatel/p2p-swap/internal/metrics"
)

// Options carries the optional pieces of the HTTP stack
type Options struct {
	Metrics       *metrics.Collector
	RateLimiter   *middleware.RateLimiter
	AllowedOrigin string
}

// SetupRoutes configures all API routes with middleware. Every route is
// served at the root and again under /api.
func SetupRoutes(holder *handlers.TradeHolder, opts Options) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(handlers.NotFoundHandler)
	router.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowedHandler)

	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}
	if opts.RateLimiter != nil {
		router.Use(opts.RateLimiter.Middleware)
	}

	register(router, holder)
	register(router.PathPrefix("/api").Subrouter(), holder)

	router.HandleFunc("/health", holder.HealthHandler).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	// Compress everything except websocket upgrades
	compressed := gzhttp.GzipHandler(router)
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})

	// Outermost first: RequestID -> Logging -> CORS -> Recovery -> Handler
	handler = middleware.Recovery(handler)
	handler = middleware.CORS(opts.AllowedOrigin)(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	return handler
}

func register(r *mux.Router, holder *handlers.TradeHolder) {
	r.HandleFunc("/trade", holder.CreateTradeHandler).Methods(http.MethodPost)
	r.HandleFunc("/trade", holder.ListTradesHandler).Methods(http.MethodGet)
	r.HandleFunc("/trades", holder.ListTradesHandler).Methods(http.MethodGet)
	r.HandleFunc("/trades/stream", holder.TradeStreamHandler).Methods(http.MethodGet)
	r.HandleFunc("/trade/{id}", holder.GetTradeHandler).Methods(http.MethodGet)
	r.HandleFunc("/trade/{id}/accept", holder.AcceptTradeHandler).Methods(http.MethodPost)
	r.HandleFunc("/trade/{id}/reject", holder.RejectTradeHandler).Methods(http.MethodPost)
	r.HandleFunc("/trade/{id}/complete", holder.CompleteTradeHandler).Methods(http.MethodPost)
	r.HandleFunc("/wallets/{wallet}/nfts", holder.WalletNFTsHandler).Methods(http.MethodGet)
	r.HandleFunc("/solana-nfts", holder.SolanaNFTsHandler).Methods(http.MethodGet)
}
