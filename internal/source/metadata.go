package source

import (
	"context"
	"sync"

	"github.com/raffleworks/raffle-engine/internal/ledger"
	"github.com/raffleworks/raffle-engine/internal/models"
)

// CoinDecimals resolves token decimals through the ledger's coin metadata
// registry and caches them per coin type. Exchange contracts frequently omit
// the decimals field from event payloads; without the registered value a
// precise raw amount cannot be converted to whole tokens and the purchase
// would earn nothing.
type CoinDecimals struct {
	client ledger.Client

	mu    sync.Mutex
	cache map[string]int
}

// NewCoinDecimals creates a resolver backed by the given ledger client.
func NewCoinDecimals(client ledger.Client) *CoinDecimals {
	return &CoinDecimals{
		client: client,
		cache:  make(map[string]int),
	}
}

// Resolve returns the registered decimals for a coin type, consulting the
// ledger only on the first lookup.
func (c *CoinDecimals) Resolve(ctx context.Context, coinType string) (int, error) {
	c.mu.Lock()
	if decimals, ok := c.cache[coinType]; ok {
		c.mu.Unlock()
		return decimals, nil
	}
	c.mu.Unlock()

	metadata, err := c.client.GetCoinMetadata(ctx, coinType)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cache[coinType] = metadata.Decimals
	c.mu.Unlock()
	return metadata.Decimals, nil
}

// fill completes an event that carries a precise raw amount but no decimals.
// A resolution failure is returned as a poll error so the watcher retries the
// whole cycle instead of allocating zero tickets and marking the event seen.
// Safe on a nil resolver.
func (c *CoinDecimals) fill(ctx context.Context, event *models.NormalizedEvent, fallbackCoin string) error {
	if c == nil || event.RawAmount == nil || event.Decimals >= 0 {
		return nil
	}

	coinType := event.CoinType
	if coinType == "" {
		coinType = fallbackCoin
	}
	if coinType == "" {
		return nil
	}

	decimals, err := c.Resolve(ctx, coinType)
	if err != nil {
		return err
	}
	event.Decimals = decimals
	return nil
}
