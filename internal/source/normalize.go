package source

import (
	"math/big"
	"strings"

	"github.com/raffleworks/raffle-engine/internal/indexer"
	"github.com/raffleworks/raffle-engine/internal/ledger"
	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// Candidate field paths inside ledger event payloads, in priority order.
// Exchange contracts are not consistent about naming.
var (
	eventWalletPaths = []string{"wallet", "buyer", "staker", "owner", "user", "sender"}
	eventAmountPaths = []string{"amount", "amount_in", "amountIn", "raw_amount", "value", "tokens"}
	eventCoinPaths   = []string{"coin_type", "coinType", "token", "token_type"}
	eventDecPaths    = []string{"decimals", "coin_decimals"}
)

// FromLedgerEvent converts a raw ledger event into the canonical shape. The
// second return is false only when the record cannot even be keyed for
// deduplication (no transaction digest).
func FromLedgerEvent(raw ledger.Event) (models.NormalizedEvent, bool) {
	if raw.ID.TxDigest == "" {
		return models.NormalizedEvent{}, false
	}

	event := models.NormalizedEvent{
		TxRef:       raw.ID.TxDigest,
		SubIndex:    raw.SubIndex(),
		TimestampMs: raw.Timestamp(),
		Decimals:    -1,
	}

	if wallet, ok := utils.ExtractString(raw.ParsedJSON, eventWalletPaths...); ok {
		event.Wallet = utils.NormalizeAddress(wallet)
	} else {
		event.Wallet = utils.NormalizeAddress(raw.Sender)
	}

	if amount, ok := utils.ExtractString(raw.ParsedJSON, eventAmountPaths...); ok {
		setAmount(&event, amount)
	}

	if coinType, ok := utils.ExtractString(raw.ParsedJSON, eventCoinPaths...); ok {
		event.CoinType = coinType
	}

	if decimals, ok := utils.ExtractInt(raw.ParsedJSON, eventDecPaths...); ok {
		event.Decimals = int(decimals)
	}

	return event, true
}

// FromTrade converts an indexer trade row into the canonical shape.
func FromTrade(trade indexer.Trade, coinType string) (models.NormalizedEvent, bool) {
	digest, ok := trade.Digest()
	if !ok {
		return models.NormalizedEvent{}, false
	}

	event := models.NormalizedEvent{
		TxRef:    digest,
		SubIndex: trade.SubIndex(),
		CoinType: coinType,
		Decimals: -1,
	}

	if wallet, ok := trade.Wallet(); ok {
		event.Wallet = utils.NormalizeAddress(wallet)
	}
	if amount, ok := trade.RawAmount(); ok {
		setAmount(&event, amount)
	}
	if event.RawAmount == nil {
		if text, ok := trade.AmountText(); ok {
			event.AmountText = text
		}
	}
	if decimals, ok := trade.Decimals(); ok {
		event.Decimals = int(decimals)
	}
	if ts, ok := trade.Timestamp(); ok {
		event.TimestampMs = ts
	}

	return event, true
}

// setAmount routes an amount string to the precise big-integer field when it
// is a plain integer, or to the degraded text field otherwise.
func setAmount(event *models.NormalizedEvent, amount string) {
	if !strings.ContainsAny(amount, ".eE") {
		if n, ok := new(big.Int).SetString(amount, 10); ok {
			event.RawAmount = n
			return
		}
	}
	event.AmountText = amount
}
