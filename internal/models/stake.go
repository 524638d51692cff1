package models

import (
	"math/big"
	"time"
)

// Stake ledger entry directions.
const (
	StakeDirectionStake   = "stake"
	StakeDirectionUnstake = "unstake"
)

// StakeLedgerEntry is one append-only row of a wallet's stake history for a
// raffle. Entries are never mutated; the proportional unstake clawback is
// reconstructed by summing them in timestamp order.
type StakeLedgerEntry struct {
	ID           int64     `json:"id" db:"id"`
	RaffleID     string    `json:"raffle_id" db:"raffle_id"`
	Wallet       string    `json:"wallet" db:"wallet"`
	Direction    string    `json:"direction" db:"direction"`
	RawAmount    *big.Int  `json:"raw_amount" db:"raw_amount"`
	BonusTickets int64     `json:"bonus_tickets" db:"bonus_tickets"` // 0 for unstake entries
	TxRef        string    `json:"tx_ref" db:"tx_ref"`
	TimestampMs  int64     `json:"timestamp_ms" db:"timestamp_ms"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
