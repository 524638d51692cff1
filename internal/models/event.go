package models

import (
	"fmt"
	"math/big"
)

// EventKind identifies which ledger activity a watcher monitors.
type EventKind string

const (
	KindBuy     EventKind = "buy"
	KindSell    EventKind = "sell"
	KindStake   EventKind = "stake"
	KindUnstake EventKind = "unstake"
)

// AllKinds lists the event kinds a raffle runs watchers for.
var AllKinds = []EventKind{KindBuy, KindSell, KindStake, KindUnstake}

// NormalizedEvent is the canonical shape every raw source record (ledger
// event or indexer trade row) is converted into before classification and
// allocation.
//
// RawAmount carries the integer token amount at full precision. AmountText is
// a pre-formatted decimal string some sources deliver instead; it is only
// consulted on the degraded fallback path when RawAmount is absent.
type NormalizedEvent struct {
	Wallet      string   `json:"wallet"`
	RawAmount   *big.Int `json:"raw_amount,omitempty"`
	AmountText  string   `json:"amount_text,omitempty"`
	CoinType    string   `json:"coin_type"`
	Decimals    int      `json:"decimals"` // -1 when the source did not report it
	TxRef       string   `json:"tx_ref"`
	SubIndex    int      `json:"sub_index"`
	TimestampMs int64    `json:"timestamp_ms"`
}

// EventKey returns the synthetic key unique within a source, used for
// watermark deduplication.
func (e *NormalizedEvent) EventKey() string {
	return fmt.Sprintf("%s:%d", e.TxRef, e.SubIndex)
}

// HasPrecise reports whether the event carries arbitrary-precision inputs.
func (e *NormalizedEvent) HasPrecise() bool {
	return e.RawAmount != nil && e.Decimals >= 0
}
