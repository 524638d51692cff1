package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// Client defines the ledger query interface. It is a pure I/O wrapper around
// the ledger's JSON-RPC API; no business logic lives here.
type Client interface {
	QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]Event, error)
	GetTransaction(ctx context.Context, digest string) (*Transaction, error)
	GetCoinMetadata(ctx context.Context, coinType string) (*CoinMetadata, error)
	LatestCheckpoint(ctx context.Context) (uint64, error)
	HealthCheck(ctx context.Context) error
	IsConnected() bool
	Close() error
	Stats() ClientStats
}

// ClientStats holds ledger client statistics
type ClientStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
}

// RPCClient implements Client against the ledger node's JSON-RPC endpoint,
// with automatic failover across the configured backup nodes.
type RPCClient struct {
	config       *config.LedgerConfig
	primaryURL   string
	backupURLs   []string
	currentIndex int
	client       *rpc.Client
	mu           sync.RWMutex
	logger       *logrus.Logger
	stats        ClientStats

	lastHealthCheck time.Time
	isHealthy       bool
}

// NewRPCClient creates a new ledger RPC client
func NewRPCClient(cfg *config.LedgerConfig) *RPCClient {
	return &RPCClient{
		config:       cfg,
		primaryURL:   cfg.NodeURL,
		backupURLs:   cfg.BackupNodes,
		currentIndex: 0,
		logger:       utils.GetLogger(),
		stats: ClientStats{
			CurrentURL: cfg.NodeURL,
		},
	}
}

// getClient returns the current connection, dialing or reconnecting if needed
func (c *RPCClient) getClient(ctx context.Context) (*rpc.Client, error) {
	c.mu.RLock()
	client := c.client
	lastCheck := c.lastHealthCheck
	c.mu.RUnlock()

	if client == nil {
		return c.connect(ctx)
	}

	// Test the connection if it's been a while since last health check
	if time.Since(lastCheck) > time.Minute {
		if err := c.quickHealthCheck(ctx, client); err != nil {
			c.logger.WithError(err).Warn("Ledger health check failed, reconnecting")
			return c.reconnect(ctx)
		}
		c.mu.Lock()
		c.lastHealthCheck = time.Now()
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()
	return client, nil
}

// connect establishes a new connection, walking the node list
func (c *RPCClient) connect(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	urls := c.getAllURLs()

	for attempt := 0; attempt < c.config.RetryAttempts; attempt++ {
		for i, url := range urls {
			c.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).
				Info("Attempting ledger connection")

			client, err := c.dialWithTimeout(ctx, url)
			if err != nil {
				c.logger.WithError(err).WithField("url", url).Warn("Ledger connection failed")
				c.stats.FailedRequests++
				continue
			}

			// Verify the connection works
			if err := c.quickHealthCheck(ctx, client); err != nil {
				client.Close()
				c.logger.WithError(err).WithField("url", url).Warn("Health check failed after connection")
				continue
			}

			c.client = client
			c.currentIndex = i
			c.stats.CurrentURL = url
			c.stats.LastConnectedAt = time.Now()
			c.isHealthy = true
			c.lastHealthCheck = time.Now()

			c.logger.WithField("url", url).Info("Connected to ledger node")
			return client, nil
		}

		if attempt < c.config.RetryAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any ledger node",
		"All connection attempts exhausted")
}

// reconnect drops the current connection and dials again
func (c *RPCClient) reconnect(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	c.stats.Reconnects++
	c.mu.Unlock()

	return c.connect(ctx)
}

// dialWithTimeout creates a connection with timeout
func (c *RPCClient) dialWithTimeout(ctx context.Context, url string) (*rpc.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return rpc.DialContext(dialCtx, url)
}

// quickHealthCheck performs a cheap liveness call
func (c *RPCClient) quickHealthCheck(ctx context.Context, client *rpc.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var checkpoint string
	return client.CallContext(checkCtx, &checkpoint, methodLatestCheckpoint)
}

// call executes one JSON-RPC call with request accounting
func (c *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if err := client.CallContext(callCtx, result, method, args...); err != nil {
		c.mu.Lock()
		c.stats.FailedRequests++
		c.mu.Unlock()
		return utils.NewAppError(utils.ErrCodeLedger, "Ledger RPC call failed", err.Error())
	}
	return nil
}

// HealthCheck performs a comprehensive health check
func (c *RPCClient) HealthCheck(ctx context.Context) error {
	if _, err := c.LatestCheckpoint(ctx); err != nil {
		c.mu.Lock()
		c.isHealthy = false
		c.stats.IsHealthy = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.stats.LastHealthCheck = time.Now()
	c.stats.IsHealthy = true
	c.lastHealthCheck = time.Now()
	c.isHealthy = true
	c.mu.Unlock()

	return nil
}

// IsConnected returns whether the client is connected and healthy
func (c *RPCClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.isHealthy
}

// Close closes the connection
func (c *RPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}

	c.isHealthy = false
	c.logger.Info("Ledger client closed")
	return nil
}

// Stats returns client statistics
func (c *RPCClient) Stats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// getAllURLs returns all node URLs starting from the current index
func (c *RPCClient) getAllURLs() []string {
	urls := []string{c.primaryURL}
	urls = append(urls, c.backupURLs...)

	if c.currentIndex > 0 && c.currentIndex < len(urls) {
		rotated := make([]string, len(urls))
		copy(rotated, urls[c.currentIndex:])
		copy(rotated[len(urls)-c.currentIndex:], urls[:c.currentIndex])
		return rotated
	}

	return urls
}
