package models

import "time"

// Winner selection methods.
const (
	SelectionOnChain    = "on-chain"
	SelectionClientSide = "client-side"
)

// WinnerRecord captures the outcome of a raffle's weighted draw. Exactly one
// record exists per decided raffle.
type WinnerRecord struct {
	RaffleID      string    `json:"raffle_id" db:"raffle_id"`
	Wallet        string    `json:"wallet" db:"wallet"`
	WinningTicket int64     `json:"winning_ticket" db:"winning_ticket"`
	TicketCount   int64     `json:"ticket_count" db:"ticket_count"`
	Method        string    `json:"method" db:"method"`
	Proof         string    `json:"proof,omitempty" db:"proof"`
	TotalTickets  int64     `json:"total_tickets" db:"total_tickets"`
	Participants  int       `json:"participants" db:"participants"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
