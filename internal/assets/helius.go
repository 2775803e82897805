// Package assets looks up the NFTs a Solana wallet holds through the Helius API.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/types"
)

const (
	DefaultBaseURL   = "https://api.helius.xyz"
	unnamedNFT       = "Unnamed NFT"
	solanaMarketName = "Solana"
	maxBodyBytes     = 8 << 20
)

var (
	// ErrNotConfigured is returned when no Helius API key is set
	ErrNotConfigured = errors.New("helius api key not configured")

	// ErrInvalidWallet is returned for addresses that are not base58 public keys
	ErrInvalidWallet = errors.New("invalid wallet address")

	// ErrUpstream wraps every failure talking to Helius
	ErrUpstream = errors.New("helius fetch error")
)

// NFT is the trimmed view of a wallet asset the trade builder shows
type NFT struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	Marketplace string `json:"marketplace"`
}

// Config controls the Helius client
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	CacheSize         int
	CacheTTL          time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client fetches wallet NFTs, caching results per wallet and rate limiting
// outbound calls
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	cache   *expirable.LRU[string, []NFT]
}

// NewClient creates a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:   expirable.NewLRU[string, []NFT](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// heliusAsset holds the parts of a Helius asset we read
type heliusAsset struct {
	Content struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Links struct {
			Image string `json:"image"`
		} `json:"links"`
	} `json:"content"`
}

// WalletNFTs returns the NFTs held by wallet
func (c *Client) WalletNFTs(ctx context.Context, wallet string) ([]NFT, error) {
	wallet = strings.TrimSpace(wallet)
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		return nil, errors.Wrapf(ErrInvalidWallet, "%q", wallet)
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if cached, ok := c.cache.Get(wallet); ok {
		return append([]NFT(nil), cached...), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	endpoint := fmt.Sprintf("%s/v0/addresses/%s/nfts?api-key=%s",
		c.baseURL, url.PathEscape(wallet), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrUpstream, redactKey(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, errors.Wrapf(ErrUpstream, "status %d", resp.StatusCode)
	}

	var items []heliusAsset
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&items); err != nil {
		return nil, errors.Wrapf(ErrUpstream, "decode response: %v", err)
	}

	nfts := make([]NFT, 0, len(items))
	for _, item := range items {
		name := item.Content.Metadata.Name
		if name == "" {
			name = unnamedNFT
		}
		nfts = append(nfts, NFT{
			Name:        name,
			Image:       item.Content.Links.Image,
			Marketplace: solanaMarketName,
		})
	}

	c.cache.Add(wallet, nfts)
	logger.Debug("Fetched wallet NFTs", map[string]interface{}{
		"wallet": types.FormatWalletAddress(wallet),
		"count":  len(nfts),
	})
	return append([]NFT(nil), nfts...), nil
}

// redactKey keeps the API key out of error messages that echo the URL
func redactKey(msg, key string) string {
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, url.QueryEscape(key), "REDACTED")
}
