package allocation

import (
	"math/big"

	"github.com/raffleworks/raffle-engine/internal/models"
)

// Basis points used for proportional unstake clawback.
const bpsScale = 10_000

// StakeBonus computes the bonus tickets granted for a stake event. The bonus
// rewards tickets already earned through purchases, not staking volume: it is
// a percentage of the wallet's ticket balance at the moment of staking.
//
//	bonus = floor(currentTickets * bonusPercent / 100)
func StakeBonus(currentTickets, bonusPercent int64) int64 {
	if currentTickets <= 0 || bonusPercent <= 0 {
		return 0
	}

	bonus := new(big.Int).Mul(big.NewInt(currentTickets), big.NewInt(bonusPercent))
	bonus.Quo(bonus, big.NewInt(100))

	if bonus.Cmp(maxTickets) > 0 {
		return maxTickets.Int64()
	}
	return bonus.Int64()
}

// StakePosition is a wallet's reconstructed staking state for one raffle,
// summed from its append-only stake ledger.
type StakePosition struct {
	TotalStaked   *big.Int
	TotalUnstaked *big.Int
	TotalBonus    int64
}

// ReconstructPosition sums a wallet's prior stake/unstake entries. Entries
// must be the wallet's full processed history for the raffle.
func ReconstructPosition(entries []*models.StakeLedgerEntry) StakePosition {
	position := StakePosition{
		TotalStaked:   new(big.Int),
		TotalUnstaked: new(big.Int),
	}

	for _, entry := range entries {
		if entry.RawAmount == nil {
			continue
		}
		switch entry.Direction {
		case models.StakeDirectionStake:
			position.TotalStaked.Add(position.TotalStaked, entry.RawAmount)
			position.TotalBonus += entry.BonusTickets
		case models.StakeDirectionUnstake:
			position.TotalUnstaked.Add(position.TotalUnstaked, entry.RawAmount)
		}
	}

	return position
}

// StakedBalance returns totalStaked - totalUnstaked.
func (p StakePosition) StakedBalance() *big.Int {
	return new(big.Int).Sub(p.TotalStaked, p.TotalUnstaked)
}

// UnstakeClawback computes how many bonus tickets to remove for an unstake of
// unstakeAmount, given the wallet's prior stake ledger. A wallet may stake in
// several increments with different bonus amounts and partially unstake, so
// the clawback is proportional to the share of the currently staked balance
// being withdrawn rather than a flat per-event reversal:
//
//	proportionBps = unstakeAmount * 10000 / currentStakedBalance
//	clawback      = floor(totalBonusAwarded * proportionBps / 10000)
//
// If the reconstructed staked balance is not positive, the entire awarded
// bonus is removed. The result never exceeds the total bonus awarded and
// never drops below zero.
func UnstakeClawback(entries []*models.StakeLedgerEntry, unstakeAmount *big.Int) int64 {
	position := ReconstructPosition(entries)
	if position.TotalBonus <= 0 {
		return 0
	}

	staked := position.StakedBalance()
	if staked.Sign() <= 0 {
		return position.TotalBonus
	}

	if unstakeAmount == nil || unstakeAmount.Sign() <= 0 {
		return 0
	}

	proportionBps := new(big.Int).Mul(unstakeAmount, big.NewInt(bpsScale))
	proportionBps.Quo(proportionBps, staked)
	if proportionBps.Cmp(big.NewInt(bpsScale)) > 0 {
		proportionBps.SetInt64(bpsScale)
	}

	clawback := new(big.Int).Mul(big.NewInt(position.TotalBonus), proportionBps)
	clawback.Quo(clawback, big.NewInt(bpsScale))

	if clawback.Sign() < 0 {
		return 0
	}
	if clawback.Cmp(big.NewInt(position.TotalBonus)) > 0 {
		return position.TotalBonus
	}
	return clawback.Int64()
}
