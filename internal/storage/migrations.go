package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create raffles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS raffles (
					raffle_id TEXT PRIMARY KEY,
					coin_type TEXT NOT NULL,
					ticket_ratio REAL NOT NULL,
					min_purchase_tokens REAL NOT NULL DEFAULT 0,
					stake_bonus_percent INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'active',
					started_at DATETIME NOT NULL,
					ends_at DATETIME NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_raffles_status ON raffles(status);
				CREATE INDEX IF NOT EXISTS idx_raffles_started_at ON raffles(started_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create tickets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tickets (
					raffle_id TEXT NOT NULL,
					wallet TEXT NOT NULL,
					count INTEGER NOT NULL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (raffle_id, wallet)
				);

				CREATE INDEX IF NOT EXISTS idx_tickets_raffle ON tickets(raffle_id);
			`,
		},
		{
			Version:     "003",
			Description: "Create processed refs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS processed_refs (
					raffle_id TEXT NOT NULL,
					tx_ref TEXT NOT NULL,
					kind TEXT NOT NULL,
					processed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (raffle_id, tx_ref)
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create stake ledger table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stake_ledger (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					raffle_id TEXT NOT NULL,
					wallet TEXT NOT NULL,
					direction TEXT NOT NULL,
					raw_amount TEXT NOT NULL,
					bonus_tickets INTEGER NOT NULL DEFAULT 0,
					tx_ref TEXT NOT NULL,
					timestamp_ms INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_stake_ledger_wallet ON stake_ledger(raffle_id, wallet, timestamp_ms);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_stake_ledger_ref ON stake_ledger(raffle_id, tx_ref);
			`,
		},
		{
			Version:     "005",
			Description: "Create winners table",
			SQL: `
				CREATE TABLE IF NOT EXISTS winners (
					raffle_id TEXT PRIMARY KEY,
					wallet TEXT NOT NULL,
					winning_ticket INTEGER NOT NULL,
					ticket_count INTEGER NOT NULL,
					method TEXT NOT NULL,
					proof TEXT,
					total_tickets INTEGER NOT NULL,
					participants INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create raffles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS raffles (
					raffle_id TEXT PRIMARY KEY,
					coin_type TEXT NOT NULL,
					ticket_ratio DOUBLE PRECISION NOT NULL,
					min_purchase_tokens DOUBLE PRECISION NOT NULL DEFAULT 0,
					stake_bonus_percent BIGINT NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'active',
					started_at TIMESTAMPTZ NOT NULL,
					ends_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_raffles_status ON raffles(status);
				CREATE INDEX IF NOT EXISTS idx_raffles_started_at ON raffles(started_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create tickets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tickets (
					raffle_id TEXT NOT NULL,
					wallet TEXT NOT NULL,
					count BIGINT NOT NULL DEFAULT 0,
					updated_at TIMESTAMPTZ DEFAULT NOW(),
					PRIMARY KEY (raffle_id, wallet)
				);

				CREATE INDEX IF NOT EXISTS idx_tickets_raffle ON tickets(raffle_id);
			`,
		},
		{
			Version:     "003",
			Description: "Create processed refs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS processed_refs (
					raffle_id TEXT NOT NULL,
					tx_ref TEXT NOT NULL,
					kind TEXT NOT NULL,
					processed_at TIMESTAMPTZ DEFAULT NOW(),
					PRIMARY KEY (raffle_id, tx_ref)
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create stake ledger table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stake_ledger (
					id BIGSERIAL PRIMARY KEY,
					raffle_id TEXT NOT NULL,
					wallet TEXT NOT NULL,
					direction TEXT NOT NULL,
					raw_amount TEXT NOT NULL,
					bonus_tickets BIGINT NOT NULL DEFAULT 0,
					tx_ref TEXT NOT NULL,
					timestamp_ms BIGINT NOT NULL,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_stake_ledger_wallet ON stake_ledger(raffle_id, wallet, timestamp_ms);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_stake_ledger_ref ON stake_ledger(raffle_id, tx_ref);
			`,
		},
		{
			Version:     "005",
			Description: "Create winners table",
			SQL: `
				CREATE TABLE IF NOT EXISTS winners (
					raffle_id TEXT PRIMARY KEY,
					wallet TEXT NOT NULL,
					winning_ticket BIGINT NOT NULL,
					ticket_count BIGINT NOT NULL,
					method TEXT NOT NULL,
					proof TEXT,
					total_tickets BIGINT NOT NULL,
					participants INTEGER NOT NULL,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);
			`,
		},
	}
}
