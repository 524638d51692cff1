package models

import "time"

// Raffle status lifecycle. A raffle is watched while active, stops accepting
// ticket mutations once ended, and is terminal once decided (winner selected
// or recorded as having no participants).
const (
	RaffleStatusActive    = "active"
	RaffleStatusEnded     = "ended"
	RaffleStatusDecided   = "decided"
	RaffleStatusNoWinner  = "no_winner"
	RaffleStatusCancelled = "cancelled"
)

// RaffleContext is the immutable snapshot a watcher operates against. It is
// refreshed periodically from storage; a change in raffle identity or
// monitored coin type forces a watcher reset.
type RaffleContext struct {
	RaffleID          string    `json:"raffle_id" db:"raffle_id"`
	CoinType          string    `json:"coin_type" db:"coin_type"`
	TicketRatio       float64   `json:"ticket_ratio" db:"ticket_ratio"`
	MinPurchaseTokens float64   `json:"min_purchase_tokens" db:"min_purchase_tokens"`
	StakeBonusPercent int64     `json:"stake_bonus_percent" db:"stake_bonus_percent"`
	Status            string    `json:"status" db:"status"`
	StartedAt         time.Time `json:"started_at" db:"started_at"`
	EndsAt            time.Time `json:"ends_at" db:"ends_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// SameTarget reports whether two contexts watch the same raffle and token.
// Anything else (ratio, threshold, bonus) can change without a watcher reset.
func (r *RaffleContext) SameTarget(other *RaffleContext) bool {
	if other == nil {
		return false
	}
	return r.RaffleID == other.RaffleID && r.CoinType == other.CoinType
}

// IsActive reports whether the raffle should be watched.
func (r *RaffleContext) IsActive() bool {
	return r.Status == RaffleStatusActive
}

// IsDecided reports whether winner selection has already concluded.
func (r *RaffleContext) IsDecided() bool {
	return r.Status == RaffleStatusDecided || r.Status == RaffleStatusNoWinner
}

// TicketEntry is one row of a raffle's ticket table.
type TicketEntry struct {
	RaffleID  string    `json:"raffle_id" db:"raffle_id"`
	Wallet    string    `json:"wallet" db:"wallet"`
	Count     int64     `json:"count" db:"count"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
