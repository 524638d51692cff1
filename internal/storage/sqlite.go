// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists for file-backed databases
	if !strings.Contains(s.config.ConnectionString, ":memory:") {
		dir := filepath.Dir(s.config.ConnectionString)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
			}
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveRaffle inserts or updates a raffle
func (s *SQLiteStorage) SaveRaffle(ctx context.Context, raffle *models.RaffleContext) error {
	query := `
		INSERT INTO raffles
		(raffle_id, coin_type, ticket_ratio, min_purchase_tokens, stake_bonus_percent,
		 status, started_at, ends_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(raffle_id) DO UPDATE SET
			coin_type = excluded.coin_type,
			ticket_ratio = excluded.ticket_ratio,
			min_purchase_tokens = excluded.min_purchase_tokens,
			stake_bonus_percent = excluded.stake_bonus_percent,
			status = excluded.status,
			ends_at = excluded.ends_at,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		raffle.RaffleID, raffle.CoinType, raffle.TicketRatio, raffle.MinPurchaseTokens,
		raffle.StakeBonusPercent, raffle.Status, raffle.StartedAt, raffle.EndsAt, time.Now())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save raffle", err.Error())
	}
	return nil
}

// GetRaffle retrieves a raffle by ID
func (s *SQLiteStorage) GetRaffle(ctx context.Context, raffleID string) (*models.RaffleContext, error) {
	query := `
		SELECT raffle_id, coin_type, ticket_ratio, min_purchase_tokens, stake_bonus_percent,
		       status, started_at, ends_at, updated_at
		FROM raffles WHERE raffle_id = ?
	`
	return s.scanRaffle(s.db.QueryRowContext(ctx, query, raffleID))
}

// GetCurrentRaffle retrieves the most recently started raffle, or nil when
// none exists.
func (s *SQLiteStorage) GetCurrentRaffle(ctx context.Context) (*models.RaffleContext, error) {
	query := `
		SELECT raffle_id, coin_type, ticket_ratio, min_purchase_tokens, stake_bonus_percent,
		       status, started_at, ends_at, updated_at
		FROM raffles ORDER BY started_at DESC LIMIT 1
	`
	return s.scanRaffle(s.db.QueryRowContext(ctx, query))
}

func (s *SQLiteStorage) scanRaffle(row *sql.Row) (*models.RaffleContext, error) {
	var raffle models.RaffleContext
	err := row.Scan(&raffle.RaffleID, &raffle.CoinType, &raffle.TicketRatio,
		&raffle.MinPurchaseTokens, &raffle.StakeBonusPercent, &raffle.Status,
		&raffle.StartedAt, &raffle.EndsAt, &raffle.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get raffle", err.Error())
	}
	return &raffle, nil
}

// UpdateRaffleStatus updates a raffle's lifecycle status
func (s *SQLiteStorage) UpdateRaffleStatus(ctx context.Context, raffleID, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE raffles SET status = ?, updated_at = ? WHERE raffle_id = ?`,
		status, time.Now(), raffleID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update raffle status", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Raffle not found", raffleID)
	}
	return nil
}

// GetTicketCount returns a wallet's ticket count, zero when absent
func (s *SQLiteStorage) GetTicketCount(ctx context.Context, raffleID, wallet string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM tickets WHERE raffle_id = ? AND wallet = ?`,
		raffleID, wallet).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get ticket count", err.Error())
	}
	return count, nil
}

// AdjustTickets applies a ticket delta exactly once per (raffle, txRef). The
// processed-reference insert and the count mutation commit atomically; a
// duplicate reference returns (false, nil) without touching the count.
func (s *SQLiteStorage) AdjustTickets(ctx context.Context, raffleID, wallet string, delta int64, kind, txRef string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	inserted, err := insertProcessedRefSQLite(ctx, tx, raffleID, txRef, kind)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if delta != 0 {
		if err := adjustTicketCountSQLite(ctx, tx, raffleID, wallet, delta); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}
	return true, nil
}

// ApplyStakeAdjustment atomically records the reference, applies the bonus
// delta, and appends the stake ledger entry.
func (s *SQLiteStorage) ApplyStakeAdjustment(ctx context.Context, entry *models.StakeLedgerEntry, ticketDelta int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	inserted, err := insertProcessedRefSQLite(ctx, tx, entry.RaffleID, entry.TxRef, entry.Direction)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if ticketDelta != 0 {
		if err := adjustTicketCountSQLite(ctx, tx, entry.RaffleID, entry.Wallet, ticketDelta); err != nil {
			return false, err
		}
	}

	rawAmount := "0"
	if entry.RawAmount != nil {
		rawAmount = entry.RawAmount.String()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stake_ledger
		(raffle_id, wallet, direction, raw_amount, bonus_tickets, tx_ref, timestamp_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.RaffleID, entry.Wallet, entry.Direction, rawAmount,
		entry.BonusTickets, entry.TxRef, entry.TimestampMs, time.Now())
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to append stake ledger entry", err.Error())
	}

	if err := tx.Commit(); err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}
	return true, nil
}

// insertProcessedRefSQLite claims a transaction reference. Returns false when
// the reference was already processed.
func insertProcessedRefSQLite(ctx context.Context, tx *sql.Tx, raffleID, txRef, kind string) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_refs (raffle_id, tx_ref, kind) VALUES (?, ?, ?)`,
		raffleID, txRef, kind)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to record processed reference", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to check processed reference", err.Error())
	}
	return affected > 0, nil
}

// adjustTicketCountSQLite applies a delta to a wallet's count, clamped at
// zero so sell events can never drive a balance negative.
func adjustTicketCountSQLite(ctx context.Context, tx *sql.Tx, raffleID, wallet string, delta int64) error {
	var current int64
	err := tx.QueryRowContext(ctx,
		`SELECT count FROM tickets WHERE raffle_id = ? AND wallet = ?`,
		raffleID, wallet).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read ticket count", err.Error())
	}

	updated := current + delta
	if updated < 0 {
		updated = 0
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (raffle_id, wallet, count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(raffle_id, wallet) DO UPDATE SET
			count = excluded.count,
			updated_at = excluded.updated_at
	`, raffleID, wallet, updated, time.Now())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to adjust ticket count", err.Error())
	}
	return nil
}

// GetTicketTable returns a raffle's full ticket table ordered by wallet, so
// the winner draw's weight vector is deterministic for a given table.
func (s *SQLiteStorage) GetTicketTable(ctx context.Context, raffleID string) ([]models.TicketEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raffle_id, wallet, count, updated_at FROM tickets WHERE raffle_id = ? ORDER BY wallet`,
		raffleID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get ticket table", err.Error())
	}
	defer rows.Close()

	var entries []models.TicketEntry
	for rows.Next() {
		var entry models.TicketEntry
		if err := rows.Scan(&entry.RaffleID, &entry.Wallet, &entry.Count, &entry.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan ticket entry", err.Error())
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetStakeEntries returns a wallet's full stake history in timestamp order
func (s *SQLiteStorage) GetStakeEntries(ctx context.Context, raffleID, wallet string) ([]*models.StakeLedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, raffle_id, wallet, direction, raw_amount, bonus_tickets, tx_ref, timestamp_ms, created_at
		FROM stake_ledger WHERE raffle_id = ? AND wallet = ?
		ORDER BY timestamp_ms, id
	`, raffleID, wallet)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get stake entries", err.Error())
	}
	defer rows.Close()

	var entries []*models.StakeLedgerEntry
	for rows.Next() {
		var entry models.StakeLedgerEntry
		var rawAmount string
		if err := rows.Scan(&entry.ID, &entry.RaffleID, &entry.Wallet, &entry.Direction,
			&rawAmount, &entry.BonusTickets, &entry.TxRef, &entry.TimestampMs, &entry.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan stake entry", err.Error())
		}

		amount, ok := new(big.Int).SetString(rawAmount, 10)
		if !ok {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Corrupt raw amount in stake ledger", rawAmount)
		}
		entry.RawAmount = amount
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// SaveWinner records a raffle's winner. A second save for the same raffle is
// a no-op, keeping winner selection idempotent.
func (s *SQLiteStorage) SaveWinner(ctx context.Context, winner *models.WinnerRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO winners
		(raffle_id, wallet, winning_ticket, ticket_count, method, proof, total_tickets, participants, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, winner.RaffleID, winner.Wallet, winner.WinningTicket, winner.TicketCount,
		winner.Method, winner.Proof, winner.TotalTickets, winner.Participants, time.Now())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save winner", err.Error())
	}
	return nil
}

// GetWinner retrieves a raffle's winner record, or nil when undecided
func (s *SQLiteStorage) GetWinner(ctx context.Context, raffleID string) (*models.WinnerRecord, error) {
	var winner models.WinnerRecord
	var proof sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT raffle_id, wallet, winning_ticket, ticket_count, method, proof, total_tickets, participants, created_at
		FROM winners WHERE raffle_id = ?
	`, raffleID).Scan(&winner.RaffleID, &winner.Wallet, &winner.WinningTicket, &winner.TicketCount,
		&winner.Method, &proof, &winner.TotalTickets, &winner.Participants, &winner.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get winner", err.Error())
	}
	winner.Proof = proof.String
	return &winner, nil
}

// IsProcessed reports whether a transaction reference was already applied
func (s *SQLiteStorage) IsProcessed(ctx context.Context, raffleID, txRef string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_refs WHERE raffle_id = ? AND tx_ref = ?`,
		raffleID, txRef).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to check processed reference", err.Error())
	}
	return true, nil
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	queries := map[string]*int64{
		`SELECT COUNT(*) FROM raffles`:        &stats.TotalRaffles,
		`SELECT COUNT(*) FROM tickets`:        &stats.TotalTicketRows,
		`SELECT COUNT(*) FROM stake_ledger`:   &stats.TotalStakeEntries,
		`SELECT COUNT(*) FROM winners`:        &stats.TotalWinners,
		`SELECT COUNT(*) FROM processed_refs`: &stats.ProcessedRefs,
	}
	for query, target := range queries {
		if err := s.db.QueryRowContext(ctx, query).Scan(target); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get storage stats", err.Error())
		}
	}

	var latest sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(processed_at) FROM processed_refs`).Scan(&latest); err == nil && latest.Valid {
		stats.LatestActivity = &latest.Time
	}

	return stats, nil
}
