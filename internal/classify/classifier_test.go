package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raffleworks/raffle-engine/internal/ledger"
)

type stubLedger struct {
	txs map[string]*ledger.Transaction
	err error
}

func (s *stubLedger) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]ledger.Event, error) {
	return nil, nil
}

func (s *stubLedger) GetTransaction(ctx context.Context, digest string) (*ledger.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.txs[digest], nil
}

func (s *stubLedger) GetCoinMetadata(ctx context.Context, coinType string) (*ledger.CoinMetadata, error) {
	return &ledger.CoinMetadata{Decimals: 9}, nil
}

func (s *stubLedger) LatestCheckpoint(ctx context.Context) (uint64, error) { return 0, nil }
func (s *stubLedger) HealthCheck(ctx context.Context) error               { return nil }
func (s *stubLedger) IsConnected() bool                                   { return true }
func (s *stubLedger) Close() error                                        { return nil }
func (s *stubLedger) Stats() ledger.ClientStats                           { return ledger.ClientStats{} }

func TestPureTransferIsNotASwap(t *testing.T) {
	client := &stubLedger{txs: map[string]*ledger.Transaction{
		"0xtransfer": {Digest: "0xtransfer"},
	}}
	sc := NewSwapClassifier(client, nil)

	assert.False(t, sc.IsExchangeSwap(context.Background(), "0xtransfer"))
	assert.Equal(t, uint64(1), sc.Stats().Transfers)
}

func TestKnownExchangePackageIsASwap(t *testing.T) {
	client := &stubLedger{txs: map[string]*ledger.Transaction{
		"0xbuy": {Digest: "0xbuy", Calls: []ledger.ContractCall{
			{Package: "0xAMM", Module: "pool", Function: "deposit"},
		}},
	}}
	// Package matching is case-insensitive.
	sc := NewSwapClassifier(client, []string{"0xamm"})

	assert.True(t, sc.IsExchangeSwap(context.Background(), "0xbuy"))
	assert.Equal(t, uint64(1), sc.Stats().Swaps)
}

func TestSwapFunctionNameIsASwap(t *testing.T) {
	client := &stubLedger{txs: map[string]*ledger.Transaction{
		"0xbuy": {Digest: "0xbuy", Calls: []ledger.ContractCall{
			{Package: "0xunknown", Module: "router", Function: "Swap_Exact_In"},
		}},
	}}
	sc := NewSwapClassifier(client, nil)

	assert.True(t, sc.IsExchangeSwap(context.Background(), "0xbuy"))
}

func TestUnrelatedContractCallIsNotASwap(t *testing.T) {
	client := &stubLedger{txs: map[string]*ledger.Transaction{
		"0xmint": {Digest: "0xmint", Calls: []ledger.ContractCall{
			{Package: "0xnft", Module: "collection", Function: "mint"},
		}},
	}}
	sc := NewSwapClassifier(client, []string{"0xamm"})

	assert.False(t, sc.IsExchangeSwap(context.Background(), "0xmint"))
}

func TestLookupErrorIsConservativelyNotASwap(t *testing.T) {
	client := &stubLedger{err: errors.New("node unavailable")}
	sc := NewSwapClassifier(client, []string{"0xamm"})

	assert.False(t, sc.IsExchangeSwap(context.Background(), "0xbuy"))
	assert.Equal(t, uint64(1), sc.Stats().LookupErrors)
}
