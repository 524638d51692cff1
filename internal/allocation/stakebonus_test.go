package allocation

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raffleworks/raffle-engine/internal/models"
)

func stakeEntry(direction string, amount int64, bonus int64) *models.StakeLedgerEntry {
	return &models.StakeLedgerEntry{
		RaffleID:     "raffle-1",
		Wallet:       "wallet-1",
		Direction:    direction,
		RawAmount:    big.NewInt(amount),
		BonusTickets: bonus,
	}
}

func TestStakeBonus(t *testing.T) {
	// 100 tickets at 25% bonus grants 25.
	assert.Equal(t, int64(25), StakeBonus(100, 25))

	// Floored, not rounded.
	assert.Equal(t, int64(2), StakeBonus(11, 25))

	assert.Equal(t, int64(0), StakeBonus(0, 25))
	assert.Equal(t, int64(0), StakeBonus(100, 0))
}

func TestStakeUnstakeSymmetry(t *testing.T) {
	// stake(X) then unstake(X) nets zero bonus change when nothing happens
	// in between.
	entries := []*models.StakeLedgerEntry{
		stakeEntry(models.StakeDirectionStake, 1000, 25),
	}

	clawback := UnstakeClawback(entries, big.NewInt(1000))
	assert.Equal(t, int64(25), clawback)
}

func TestPartialUnstakeProportional(t *testing.T) {
	// Two equal stakes each granting 10 bonus tickets: 20 staked, 20 bonus.
	// Unstaking half the staked balance removes 10 — proportional, not
	// "most recent entry reversed".
	entries := []*models.StakeLedgerEntry{
		stakeEntry(models.StakeDirectionStake, 10, 10),
		stakeEntry(models.StakeDirectionStake, 10, 10),
	}

	clawback := UnstakeClawback(entries, big.NewInt(10))
	assert.Equal(t, int64(10), clawback)
}

func TestUnstakeClawbackAcrossPriorUnstakes(t *testing.T) {
	// 1000 staked (30 bonus), 400 already unstaked with proportional
	// clawbacks recorded as unstake entries. Remaining balance 600.
	entries := []*models.StakeLedgerEntry{
		stakeEntry(models.StakeDirectionStake, 1000, 30),
		stakeEntry(models.StakeDirectionUnstake, 400, 0),
	}

	// Withdrawing 300 of the remaining 600 is 50% -> floor(30 * 0.5) = 15.
	clawback := UnstakeClawback(entries, big.NewInt(300))
	assert.Equal(t, int64(15), clawback)
}

func TestUnstakeWithNonPositiveBalanceRemovesEverything(t *testing.T) {
	// Ledger says more was unstaked than staked (shouldn't happen, but the
	// source of truth is external): remove the entire awarded bonus.
	entries := []*models.StakeLedgerEntry{
		stakeEntry(models.StakeDirectionStake, 100, 12),
		stakeEntry(models.StakeDirectionUnstake, 150, 0),
	}

	clawback := UnstakeClawback(entries, big.NewInt(50))
	assert.Equal(t, int64(12), clawback)
}

func TestUnstakeNeverExceedsAwardedBonus(t *testing.T) {
	entries := []*models.StakeLedgerEntry{
		stakeEntry(models.StakeDirectionStake, 100, 10),
	}

	// Requesting more than the staked balance caps at 100%.
	clawback := UnstakeClawback(entries, big.NewInt(500))
	assert.Equal(t, int64(10), clawback)
}

func TestUnstakeWithNoBonusHistory(t *testing.T) {
	entries := []*models.StakeLedgerEntry{
		stakeEntry(models.StakeDirectionStake, 100, 0),
	}

	assert.Equal(t, int64(0), UnstakeClawback(entries, big.NewInt(100)))
	assert.Equal(t, int64(0), UnstakeClawback(nil, big.NewInt(100)))
}
