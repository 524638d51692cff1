// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/raffleworks/raffle-engine/internal/models"
)

// Storage defines the interface for raffle persistence operations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Raffle operations
	SaveRaffle(ctx context.Context, raffle *models.RaffleContext) error
	GetRaffle(ctx context.Context, raffleID string) (*models.RaffleContext, error)
	GetCurrentRaffle(ctx context.Context) (*models.RaffleContext, error)
	UpdateRaffleStatus(ctx context.Context, raffleID, status string) error

	// Ticket operations. AdjustTickets applies a ticket delta exactly once per
	// (raffle, txRef): the returned bool is false when the reference was
	// already processed. Counts are clamped at zero.
	GetTicketCount(ctx context.Context, raffleID, wallet string) (int64, error)
	AdjustTickets(ctx context.Context, raffleID, wallet string, delta int64, kind, txRef string) (bool, error)
	GetTicketTable(ctx context.Context, raffleID string) ([]models.TicketEntry, error)

	// Stake ledger operations. ApplyStakeAdjustment atomically records the
	// processed reference, applies the bonus ticket delta, and appends the
	// ledger entry; false means the reference was already processed.
	ApplyStakeAdjustment(ctx context.Context, entry *models.StakeLedgerEntry, ticketDelta int64) (bool, error)
	GetStakeEntries(ctx context.Context, raffleID, wallet string) ([]*models.StakeLedgerEntry, error)

	// Winner operations. SaveWinner is a no-op when a record already exists.
	SaveWinner(ctx context.Context, winner *models.WinnerRecord) error
	GetWinner(ctx context.Context, raffleID string) (*models.WinnerRecord, error)

	// Idempotency
	IsProcessed(ctx context.Context, raffleID, txRef string) (bool, error)

	// Statistics and monitoring
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalRaffles      int64      `json:"total_raffles"`
	TotalTicketRows   int64      `json:"total_ticket_rows"`
	TotalStakeEntries int64      `json:"total_stake_entries"`
	TotalWinners      int64      `json:"total_winners"`
	ProcessedRefs     int64      `json:"processed_refs"`
	LatestActivity    *time.Time `json:"latest_activity,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
