package allocation

import (
	"math"
	"math/big"
	"strconv"

	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// RatioScale fixes the tickets-per-token ratio to six decimal digits of
// precision. All ratio math happens on floor(ratio * RatioScale) so that
// fractional ratios (1 ticket per 5,000 tokens) never touch floating point
// once raw amounts are involved.
const RatioScale = 1_000_000

var (
	ratioScaleBig = big.NewInt(RatioScale)
	maxTickets    = big.NewInt(math.MaxInt64)
)

// ScaledRatio converts a configured ratio to its fixed-point representation.
func ScaledRatio(ratio float64) int64 {
	if ratio <= 0 {
		return 0
	}
	return int64(math.Floor(ratio * RatioScale))
}

// TicketsForPurchase converts a normalized purchase event into a non-negative
// integer ticket count, honoring the raffle's minimum-purchase threshold and
// tickets-per-token ratio.
//
//	tickets = floor(rawAmount * floor(ratio*10^6) / (10^decimals * 10^6))
//
// computed entirely in big.Int. The result is clamped to the int64 maximum.
// When the event lacks arbitrary-precision inputs the degraded float path is
// used instead.
func TicketsForPurchase(event *models.NormalizedEvent, raffle *models.RaffleContext) int64 {
	scaledRatio := ScaledRatio(raffle.TicketRatio)
	if scaledRatio <= 0 {
		return 0
	}

	if !event.HasPrecise() {
		return ticketsFromText(event.AmountText, raffle)
	}

	if belowThreshold(event.RawAmount, event.Decimals, raffle.MinPurchaseTokens) {
		return 0
	}

	// rawAmount * scaledRatio
	numerator := new(big.Int).Mul(event.RawAmount, big.NewInt(scaledRatio))

	// 10^decimals * 10^6
	denominator := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(event.Decimals)), nil)
	denominator.Mul(denominator, ratioScaleBig)

	tickets := new(big.Int).Quo(numerator, denominator)

	if tickets.Sign() < 0 {
		return 0
	}
	if tickets.Cmp(maxTickets) > 0 {
		utils.GetLogger().WithField("raw_amount", event.RawAmount.String()).
			Warn("Ticket count overflow, clamping to max")
		return math.MaxInt64
	}
	return tickets.Int64()
}

// belowThreshold compares a raw integer amount against the whole-token
// minimum-purchase threshold without precision loss:
//
//	rawAmount * 10^6 < floor(threshold*10^6) * 10^decimals
func belowThreshold(rawAmount *big.Int, decimals int, minPurchaseTokens float64) bool {
	if minPurchaseTokens <= 0 {
		return false
	}

	left := new(big.Int).Mul(rawAmount, ratioScaleBig)

	thresholdScaled := big.NewInt(int64(math.Floor(minPurchaseTokens * RatioScale)))
	right := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	right.Mul(right, thresholdScaled)

	return left.Cmp(right) < 0
}

// ticketsFromText is the degraded-precision path for sources that only
// deliver a pre-formatted decimal string. Acceptable only when raw amount or
// decimals are absent.
func ticketsFromText(amountText string, raffle *models.RaffleContext) int64 {
	if amountText == "" {
		return 0
	}

	amount, err := strconv.ParseFloat(amountText, 64)
	if err != nil {
		utils.GetLogger().WithField("amount", amountText).
			Warn("Unparseable amount string, allocating no tickets")
		return 0
	}

	if raffle.MinPurchaseTokens > 0 && amount < raffle.MinPurchaseTokens {
		return 0
	}

	tickets := math.Floor(amount * raffle.TicketRatio)
	if tickets < 0 {
		return 0
	}
	if tickets >= math.MaxInt64 {
		utils.GetLogger().WithField("amount", amountText).
			Warn("Ticket count overflow, clamping to max")
		return math.MaxInt64
	}
	return int64(tickets)
}
