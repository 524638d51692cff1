package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// Client defines the trade-indexing API interface. The indexer is a
// higher-throughput alternative to raw ledger queries and supports
// cursor-based forward pagination.
type Client interface {
	FetchTrades(ctx context.Context, tokenID string, opts FetchOptions) (*TradePage, error)
	Stats() ClientStats
}

// FetchOptions controls a trades query.
type FetchOptions struct {
	Limit     int
	Cursor    string
	Ascending bool
}

// TradePage is one page of trade rows. Rows are kept as raw maps; the indexer
// has changed its field names more than once, so extraction is tolerant
// (see Trade accessors below).
type TradePage struct {
	Trades     []Trade `json:"trades"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// Trade wraps one raw indexer row.
type Trade struct {
	Raw map[string]interface{}
}

// Candidate field paths per logical value, in priority order.
var (
	digestPaths    = []string{"txDigest", "tx_digest", "digest", "transaction.digest", "txHash"}
	walletPaths    = []string{"wallet", "walletAddress", "maker", "sender", "trader", "account.address"}
	amountPaths    = []string{"rawAmount", "raw_amount", "amountRaw", "baseAmount", "amount"}
	amountTxtPaths = []string{"amountUi", "uiAmount", "amountFormatted", "displayAmount"}
	decimalsPaths  = []string{"decimals", "tokenDecimals", "token.decimals", "baseDecimals"}
	timestampPaths = []string{"timestampMs", "timestamp_ms", "blockTimestamp", "timestamp", "ts"}
	sideDirPaths   = []string{"side", "direction", "tradeType", "kind"}
	subIndexPaths  = []string{"eventIndex", "event_index", "logIndex", "seq"}
)

func (t Trade) Digest() (string, bool)     { return utils.ExtractString(t.Raw, digestPaths...) }
func (t Trade) Wallet() (string, bool)     { return utils.ExtractString(t.Raw, walletPaths...) }
func (t Trade) RawAmount() (string, bool)  { return utils.ExtractString(t.Raw, amountPaths...) }
func (t Trade) AmountText() (string, bool) { return utils.ExtractString(t.Raw, amountTxtPaths...) }
func (t Trade) Decimals() (int64, bool)    { return utils.ExtractInt(t.Raw, decimalsPaths...) }
func (t Trade) Timestamp() (int64, bool)   { return utils.ExtractInt(t.Raw, timestampPaths...) }
func (t Trade) Side() (string, bool)       { return utils.ExtractString(t.Raw, sideDirPaths...) }

// SubIndex returns the trade's index within its transaction, 0 when absent.
func (t Trade) SubIndex() int {
	n, ok := utils.ExtractInt(t.Raw, subIndexPaths...)
	if !ok {
		return 0
	}
	return int(n)
}

// ClientStats holds indexer client statistics
type ClientStats struct {
	TotalRequests  uint64    `json:"total_requests"`
	FailedRequests uint64    `json:"failed_requests"`
	LastRequestAt  time.Time `json:"last_request_at"`
}

// HTTPClient implements Client against the indexing service's REST API.
type HTTPClient struct {
	config     *config.IndexerConfig
	httpClient *http.Client
	logger     *logrus.Logger

	mu    sync.Mutex
	stats ClientStats
}

// NewHTTPClient creates a new indexing-API client
func NewHTTPClient(cfg *config.IndexerConfig) *HTTPClient {
	return &HTTPClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: utils.GetLogger(),
	}
}

// FetchTrades fetches one page of trades for a token.
func (c *HTTPClient) FetchTrades(ctx context.Context, tokenID string, opts FetchOptions) (*TradePage, error) {
	c.mu.Lock()
	c.stats.TotalRequests++
	c.stats.LastRequestAt = time.Now()
	c.mu.Unlock()

	endpoint, err := c.buildURL(tokenID, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeIndexer, "Failed to build indexer URL", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeIndexer, "Failed to create indexer request", err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		return nil, utils.NewAppError(utils.ErrCodeIndexer, "Indexer request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, utils.NewAppError(utils.ErrCodeIndexer,
			fmt.Sprintf("Indexer returned status %d", resp.StatusCode), string(body))
	}

	page, err := decodeTradePage(resp.Body)
	if err != nil {
		c.recordFailure()
		return nil, utils.NewAppError(utils.ErrCodeIndexer, "Failed to decode indexer response", err.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"token":  tokenID,
		"trades": len(page.Trades),
		"cursor": page.NextCursor,
	}).Debug("Fetched indexer trades page")

	return page, nil
}

// Stats returns client statistics
func (c *HTTPClient) Stats() ClientStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *HTTPClient) recordFailure() {
	c.mu.Lock()
	c.stats.FailedRequests++
	c.mu.Unlock()
}

func (c *HTTPClient) buildURL(tokenID string, opts FetchOptions) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", err
	}
	base.Path, err = url.JoinPath(base.Path, "v1", "tokens", tokenID, "trades")
	if err != nil {
		return "", err
	}

	query := base.Query()
	limit := opts.Limit
	if limit <= 0 {
		limit = c.config.PageSize
	}
	query.Set("limit", fmt.Sprintf("%d", limit))
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Ascending {
		query.Set("order", "asc")
	} else {
		query.Set("order", "desc")
	}
	base.RawQuery = query.Encode()

	return base.String(), nil
}

// decodeTradePage tolerates the two response envelopes the indexer has
// shipped: {"trades": [...]} and {"data": [...]}, with the cursor under
// either "next_cursor" or "nextCursor".
func decodeTradePage(body io.Reader) (*TradePage, error) {
	var envelope map[string]interface{}
	decoder := json.NewDecoder(body)
	decoder.UseNumber()
	if err := decoder.Decode(&envelope); err != nil {
		return nil, err
	}

	page := &TradePage{}

	rows, ok := envelope["trades"].([]interface{})
	if !ok {
		rows, _ = envelope["data"].([]interface{})
	}
	for _, row := range rows {
		raw, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		page.Trades = append(page.Trades, Trade{Raw: raw})
	}

	if cursor, ok := utils.ExtractString(envelope, "next_cursor", "nextCursor", "cursor"); ok {
		page.NextCursor = cursor
	}

	return page, nil
}
