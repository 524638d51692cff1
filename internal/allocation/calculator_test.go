package allocation

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raffleworks/raffle-engine/internal/models"
)

func purchaseEvent(rawAmount string, decimals int) *models.NormalizedEvent {
	amount, ok := new(big.Int).SetString(rawAmount, 10)
	if !ok {
		panic("bad raw amount in test: " + rawAmount)
	}
	return &models.NormalizedEvent{
		Wallet:      "wallet-1",
		RawAmount:   amount,
		Decimals:    decimals,
		TxRef:       "0xdigest",
		TimestampMs: 1735689600000,
	}
}

func TestTicketsForPurchaseFractionalRatio(t *testing.T) {
	// 5,000 whole tokens at 1 ticket per 5,000 tokens: exactly one ticket.
	// Float math on the raw amount would round this to zero.
	raffle := &models.RaffleContext{TicketRatio: 0.0002}
	event := purchaseEvent("5000000000000", 9)

	assert.Equal(t, int64(1), TicketsForPurchase(event, raffle))
}

func TestTicketsForPurchaseMatchesScaledIntegerFormula(t *testing.T) {
	raffle := &models.RaffleContext{TicketRatio: 0.0002}
	event := purchaseEvent("12344999999999", 9) // 12,344.999... tokens

	// floor(raw * 200 / (10^9 * 10^6)) = floor(2.468999...) = 2
	assert.Equal(t, int64(2), TicketsForPurchase(event, raffle))
}

func TestTicketsForPurchaseWholeRatio(t *testing.T) {
	raffle := &models.RaffleContext{TicketRatio: 2}
	event := purchaseEvent("1500000000", 9) // 1.5 tokens

	assert.Equal(t, int64(3), TicketsForPurchase(event, raffle))
}

func TestTicketsForPurchaseMinimumThreshold(t *testing.T) {
	raffle := &models.RaffleContext{
		TicketRatio:       1,
		MinPurchaseTokens: 100,
	}

	// Exactly the threshold earns tickets.
	atThreshold := purchaseEvent("100000000000", 9)
	assert.Equal(t, int64(100), TicketsForPurchase(atThreshold, raffle))

	// One base unit below earns nothing.
	below := purchaseEvent("99999999999", 9)
	assert.Equal(t, int64(0), TicketsForPurchase(below, raffle))
}

func TestTicketsForPurchaseZeroRatio(t *testing.T) {
	raffle := &models.RaffleContext{TicketRatio: 0}
	event := purchaseEvent("5000000000000", 9)

	assert.Equal(t, int64(0), TicketsForPurchase(event, raffle))
}

func TestTicketsForPurchaseOverflowClamped(t *testing.T) {
	raffle := &models.RaffleContext{TicketRatio: 1000000}
	huge, _ := new(big.Int).SetString("99999999999999999999999999999999", 10)
	event := &models.NormalizedEvent{
		Wallet:    "wallet-1",
		RawAmount: huge,
		Decimals:  0,
		TxRef:     "0xhuge",
	}

	assert.Equal(t, int64(math.MaxInt64), TicketsForPurchase(event, raffle))
}

func TestTicketsFromTextFallback(t *testing.T) {
	raffle := &models.RaffleContext{TicketRatio: 0.5, MinPurchaseTokens: 10}

	// No raw amount: degraded string path.
	event := &models.NormalizedEvent{
		Wallet:     "wallet-1",
		AmountText: "21",
		Decimals:   -1,
		TxRef:      "0xtext",
	}
	assert.Equal(t, int64(10), TicketsForPurchase(event, raffle))

	// Below threshold on the fallback path too.
	event.AmountText = "9.5"
	assert.Equal(t, int64(0), TicketsForPurchase(event, raffle))

	// Garbage amounts allocate nothing rather than erroring.
	event.AmountText = "not-a-number"
	assert.Equal(t, int64(0), TicketsForPurchase(event, raffle))
}
