package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/api/middleware"
	"github.com/PxPatel/p2p-swap/internal/api/models"
	"github.com/PxPatel/p2p-swap/internal/types"
)

// CreateTradeHandler handles POST /trade
func (th *TradeHolder) CreateTradeHandler(w http.ResponseWriter, r *http.Request) {
	req, httpErr := models.DecodeCreateTrade(r)
	if httpErr != nil {
		writeErrorResponse(w, r, httpErr)
		return
	}

	trade, err := th.Service.Create(r.Context(),
		req.CreatorWallet, req.CounterpartyWallet,
		req.CreatorOffer, req.CounterpartyOffer,
	)
	if err != nil {
		writeErrorResponse(w, r, models.FromError(err))
		return
	}

	writeJSON(w, http.StatusCreated, models.TradeResponse{
		BaseResponse: models.BaseResponse{Success: true},
		Trade:        models.NewTradeDTO(trade),
	})
}

// ListTradesHandler handles GET /trade?wallet= and GET /trades?wallet=.
// An optional status= narrows the list.
func (th *TradeHolder) ListTradesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status, httpErr := models.ParseStatusFilter(query.Get("status"))
	if httpErr != nil {
		writeErrorResponse(w, r, httpErr)
		return
	}

	trades, err := th.Service.GetByWallet(r.Context(), query.Get("wallet"))
	if err != nil {
		writeErrorResponse(w, r, models.FromError(err))
		return
	}

	if status != "" {
		filtered := make([]*types.Trade, 0, len(trades))
		for _, trade := range trades {
			if trade.Status == status {
				filtered = append(filtered, trade)
			}
		}
		trades = filtered
	}

	dtos := models.NewTradeDTOs(trades)
	logger.Debug("Retrieved trades", map[string]interface{}{
		"request_id": middleware.RequestIDFromContext(r.Context()),
		"wallet":     types.FormatWalletAddress(strings.TrimSpace(query.Get("wallet"))),
		"count":      len(dtos),
	})

	writeJSON(w, http.StatusOK, models.TradesResponse{
		BaseResponse: models.BaseResponse{Success: true},
		Trades:       dtos,
		Count:        len(dtos),
	})
}

// GetTradeHandler handles GET /trade/{id}
func (th *TradeHolder) GetTradeHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	trade, found, err := th.Service.GetByID(r.Context(), id)
	if err != nil {
		writeErrorResponse(w, r, models.FromError(err))
		return
	}
	if !found {
		writeErrorResponse(w, r, models.NewHTTPError(http.StatusNotFound, models.ErrTradeNotFound, "Trade "+id+" not found"))
		return
	}

	writeJSON(w, http.StatusOK, models.TradeResponse{
		BaseResponse: models.BaseResponse{Success: true},
		Trade:        models.NewTradeDTO(trade),
	})
}

// AcceptTradeHandler handles POST /trade/{id}/accept
func (th *TradeHolder) AcceptTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TransitionRequest
	if httpErr := models.DecodeJSON(r, &req); httpErr != nil {
		writeErrorResponse(w, r, httpErr)
		return
	}

	trade, err := th.Service.Accept(r.Context(), mux.Vars(r)["id"], req.WalletAddress)
	th.writeTransition(w, r, trade, err)
}

// RejectTradeHandler handles POST /trade/{id}/reject
func (th *TradeHolder) RejectTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TransitionRequest
	if httpErr := models.DecodeJSON(r, &req); httpErr != nil {
		writeErrorResponse(w, r, httpErr)
		return
	}

	trade, err := th.Service.Reject(r.Context(), mux.Vars(r)["id"], req.WalletAddress)
	th.writeTransition(w, r, trade, err)
}

// CompleteTradeHandler handles POST /trade/{id}/complete
func (th *TradeHolder) CompleteTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteTradeRequest
	if httpErr := models.DecodeJSON(r, &req); httpErr != nil {
		writeErrorResponse(w, r, httpErr)
		return
	}

	trade, err := th.Service.Complete(r.Context(), mux.Vars(r)["id"], req.WalletAddress, req.SettlementRef)
	th.writeTransition(w, r, trade, err)
}

func (th *TradeHolder) writeTransition(w http.ResponseWriter, r *http.Request, trade *types.Trade, err error) {
	if err != nil {
		writeErrorResponse(w, r, models.FromError(err))
		return
	}
	writeJSON(w, http.StatusOK, models.TradeResponse{
		BaseResponse: models.BaseResponse{Success: true},
		Trade:        models.NewTradeDTO(trade),
	})
}
