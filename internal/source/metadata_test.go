package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffleworks/raffle-engine/internal/allocation"
	"github.com/raffleworks/raffle-engine/internal/indexer"
	"github.com/raffleworks/raffle-engine/internal/ledger"
	"github.com/raffleworks/raffle-engine/internal/models"
)

type metadataLedger struct {
	events      []ledger.Event
	decimals    int
	metadataErr error
	lookups     int
}

func (s *metadataLedger) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]ledger.Event, error) {
	return s.events, nil
}

func (s *metadataLedger) GetTransaction(ctx context.Context, digest string) (*ledger.Transaction, error) {
	return nil, nil
}

func (s *metadataLedger) GetCoinMetadata(ctx context.Context, coinType string) (*ledger.CoinMetadata, error) {
	s.lookups++
	if s.metadataErr != nil {
		return nil, s.metadataErr
	}
	return &ledger.CoinMetadata{Decimals: s.decimals, Symbol: "MEME"}, nil
}

func (s *metadataLedger) LatestCheckpoint(ctx context.Context) (uint64, error) { return 0, nil }
func (s *metadataLedger) HealthCheck(ctx context.Context) error               { return nil }
func (s *metadataLedger) IsConnected() bool                                   { return true }
func (s *metadataLedger) Close() error                                        { return nil }
func (s *metadataLedger) Stats() ledger.ClientStats                           { return ledger.ClientStats{} }

// rawBuyEvent is a purchase payload that carries the integer amount but, like
// many exchange contracts, no decimals field.
func rawBuyEvent(digest string, tsMs string) ledger.Event {
	return ledger.Event{
		ID:          ledger.EventID{TxDigest: digest, EventSeq: "0"},
		Sender:      "0xw1",
		TimestampMs: tsMs,
		ParsedJSON: map[string]interface{}{
			"wallet": "0xw1",
			"amount": "5000000000000",
		},
	}
}

func TestLedgerSourceResolvesMissingDecimals(t *testing.T) {
	client := &metadataLedger{
		events:   []ledger.Event{rawBuyEvent("0xbuy", "5000")},
		decimals: 9,
	}
	src := NewLedgerSource(client, "0x2::coin::DepositEvent", "0xdead::meme::MEME", NewCoinDecimals(client))

	events, err := src.Poll(context.Background(), 0, 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 9, events[0].Decimals)
	assert.True(t, events[0].HasPrecise())

	// A 5,000-token purchase at 1 ticket per 5,000 tokens earns exactly one
	// ticket once the registered decimals are applied.
	raffle := &models.RaffleContext{RaffleID: "raffle-1", TicketRatio: 0.0002}
	assert.Equal(t, int64(1), allocation.TicketsForPurchase(&events[0], raffle))
}

func TestDecimalsResolvedOncePerCoinType(t *testing.T) {
	client := &metadataLedger{
		events:   []ledger.Event{rawBuyEvent("0xbuy1", "5000"), rawBuyEvent("0xbuy2", "6000")},
		decimals: 9,
	}
	src := NewLedgerSource(client, "0x2::coin::DepositEvent", "0xdead::meme::MEME", NewCoinDecimals(client))

	_, err := src.Poll(context.Background(), 0, 50)
	require.NoError(t, err)
	_, err = src.Poll(context.Background(), 0, 50)
	require.NoError(t, err)

	assert.Equal(t, 1, client.lookups, "registry must be consulted once per coin type")
}

func TestMetadataLookupFailureFailsThePoll(t *testing.T) {
	client := &metadataLedger{
		events:      []ledger.Event{rawBuyEvent("0xbuy", "5000")},
		metadataErr: errors.New("node unavailable"),
	}
	src := NewLedgerSource(client, "0x2::coin::DepositEvent", "0xdead::meme::MEME", NewCoinDecimals(client))

	// The poll fails as a whole so the watcher retries instead of allocating
	// zero tickets and marking the event seen.
	_, err := src.Poll(context.Background(), 0, 50)
	assert.Error(t, err)
}

func TestPayloadDecimalsSkipRegistryLookup(t *testing.T) {
	event := rawBuyEvent("0xbuy", "5000")
	event.ParsedJSON["decimals"] = float64(6)
	client := &metadataLedger{events: []ledger.Event{event}, decimals: 9}
	src := NewLedgerSource(client, "0x2::coin::DepositEvent", "0xdead::meme::MEME", NewCoinDecimals(client))

	events, err := src.Poll(context.Background(), 0, 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 6, events[0].Decimals)
	assert.Equal(t, 0, client.lookups)
}

type metadataIndexer struct {
	page indexer.TradePage
}

func (s *metadataIndexer) FetchTrades(ctx context.Context, tokenID string, opts indexer.FetchOptions) (*indexer.TradePage, error) {
	return &s.page, nil
}

func (s *metadataIndexer) Stats() indexer.ClientStats { return indexer.ClientStats{} }

func TestIndexerSourceResolvesMissingDecimals(t *testing.T) {
	trades := &metadataIndexer{page: indexer.TradePage{Trades: []indexer.Trade{
		{Raw: map[string]interface{}{
			"txDigest":    "0xbuy",
			"wallet":      "0xw1",
			"rawAmount":   "5000000000000",
			"timestampMs": float64(5000),
			"side":        "buy",
		}},
	}}}
	registry := &metadataLedger{decimals: 9}

	src := NewIndexerSource(trades, "0xdead::meme::MEME", "buy", NewCoinDecimals(registry))

	events, err := src.Poll(context.Background(), 0, 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 9, events[0].Decimals)
	assert.Equal(t, 1, registry.lookups)
}
