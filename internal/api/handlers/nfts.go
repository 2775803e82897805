package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/api/middleware"
	"github.com/PxPatel/p2p-swap/internal/api/models"
	"github.com/PxPatel/p2p-swap/internal/assets"
)

// WalletNFTsHandler handles GET /wallets/{wallet}/nfts
func (th *TradeHolder) WalletNFTsHandler(w http.ResponseWriter, r *http.Request) {
	wallet, nfts, ok := th.lookupNFTs(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NFTsResponse{
		BaseResponse: models.BaseResponse{Success: true},
		Wallet:       wallet,
		NFTs:         nfts,
	})
}

// SolanaNFTsHandler handles GET /solana-nfts?wallet=, which answers with a bare array
func (th *TradeHolder) SolanaNFTsHandler(w http.ResponseWriter, r *http.Request) {
	_, nfts, ok := th.lookupNFTs(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nfts)
}

// lookupNFTs resolves the wallet from the path or query and fetches its NFTs.
// On failure the error response is already written.
func (th *TradeHolder) lookupNFTs(w http.ResponseWriter, r *http.Request) (string, []assets.NFT, bool) {
	wallet := mux.Vars(r)["wallet"]
	if wallet == "" {
		wallet = r.URL.Query().Get("wallet")
	}
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		writeErrorResponse(w, r, models.NewHTTPError(http.StatusBadRequest, models.ErrInvalidWallet, "Wallet address is required").WithField("wallet"))
		return "", nil, false
	}
	if th.Assets == nil {
		writeErrorResponse(w, r, models.NewHTTPError(http.StatusServiceUnavailable, models.ErrServiceUnavailable, "NFT lookup is not configured"))
		return "", nil, false
	}

	nfts, err := th.Assets.WalletNFTs(r.Context(), wallet)
	switch {
	case errors.Is(err, assets.ErrInvalidWallet):
		writeErrorResponse(w, r, models.NewHTTPError(http.StatusBadRequest, models.ErrInvalidWallet, "Invalid wallet address").WithField("wallet"))
		return "", nil, false
	case errors.Is(err, assets.ErrNotConfigured):
		writeErrorResponse(w, r, models.NewHTTPError(http.StatusServiceUnavailable, models.ErrServiceUnavailable, "NFT lookup is not configured"))
		return "", nil, false
	case err != nil:
		logger.Error("NFT lookup failed", map[string]interface{}{
			"request_id": middleware.RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeErrorResponse(w, r, models.NewHTTPError(http.StatusInternalServerError, models.ErrUpstream, "Helius fetch error"))
		return "", nil, false
	}
	if nfts == nil {
		nfts = []assets.NFT{}
	}
	return wallet, nfts, true
}
