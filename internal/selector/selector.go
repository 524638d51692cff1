package selector

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/metrics"
	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/internal/storage"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// Selector performs the weighted-random winner draw for ended raffles.
// Exactly one WinnerRecord is ever produced per raffle; re-invoking Decide
// for a decided raffle is a no-op.
type Selector struct {
	store   storage.Storage
	oracle  RandomnessOracle
	metrics *metrics.PrometheusMetrics
	logger  *logrus.Entry
	draw    func(totalWeight int64) int64
}

// Option customizes a Selector.
type Option func(*Selector)

// WithDraw injects the client-side draw function, used in tests to force a
// deterministic winning ticket.
func WithDraw(draw func(totalWeight int64) int64) Option {
	return func(s *Selector) { s.draw = draw }
}

// NewSelector creates a winner selector. oracle may be nil, in which case
// every draw is client-side. prom may be nil.
func NewSelector(store storage.Storage, oracle RandomnessOracle, prom *metrics.PrometheusMetrics, opts ...Option) *Selector {
	s := &Selector{
		store:   store,
		oracle:  oracle,
		metrics: prom,
		logger:  utils.Component("selector"),
		draw:    cryptoDraw,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decide runs winner selection for an ended raffle. Preconditions: the
// raffle's end time has passed (or its status is already "ended"). A raffle
// with no positive-ticket wallets reaches the terminal no_winner state
// without a WinnerRecord and without error.
func (s *Selector) Decide(ctx context.Context, raffle *models.RaffleContext) error {
	if raffle.IsDecided() {
		return nil
	}

	// Idempotency across restarts: a stored record means the draw already
	// happened even if the status update was lost.
	existing, err := s.store.GetWinner(ctx, raffle.RaffleID)
	if err != nil {
		return err
	}
	if existing != nil {
		return s.store.UpdateRaffleStatus(ctx, raffle.RaffleID, models.RaffleStatusDecided)
	}

	if raffle.IsActive() && time.Now().Before(raffle.EndsAt) {
		return utils.NewAppError(utils.ErrCodeValidation, "Raffle has not ended", raffle.RaffleID)
	}

	if raffle.Status != models.RaffleStatusEnded {
		if err := s.store.UpdateRaffleStatus(ctx, raffle.RaffleID, models.RaffleStatusEnded); err != nil {
			return err
		}
	}

	table, err := s.store.GetTicketTable(ctx, raffle.RaffleID)
	if err != nil {
		return err
	}

	// The weight vector keeps the ticket table's wallet ordering, so the same
	// table and the same draw always name the same winner.
	var entries []models.TicketEntry
	var totalWeight int64
	for _, entry := range table {
		if entry.Count > 0 {
			entries = append(entries, entry)
			totalWeight += entry.Count
		}
	}

	if len(entries) == 0 {
		s.logger.WithField("raffle_id", raffle.RaffleID).Info("No participants, raffle closed without winner")
		if s.metrics != nil {
			s.metrics.RecordWinnerSelection("none", "no_participants")
		}
		return s.store.UpdateRaffleStatus(ctx, raffle.RaffleID, models.RaffleStatusNoWinner)
	}

	winningTicket, method, proof := s.drawTicket(ctx, totalWeight)

	var winner models.TicketEntry
	var cumulative int64
	for _, entry := range entries {
		cumulative += entry.Count
		if winningTicket < cumulative {
			winner = entry
			break
		}
	}

	record := &models.WinnerRecord{
		RaffleID:      raffle.RaffleID,
		Wallet:        winner.Wallet,
		WinningTicket: winningTicket,
		TicketCount:   winner.Count,
		Method:        method,
		Proof:         proof,
		TotalTickets:  totalWeight,
		Participants:  len(entries),
	}
	if err := s.store.SaveWinner(ctx, record); err != nil {
		return err
	}
	if err := s.store.UpdateRaffleStatus(ctx, raffle.RaffleID, models.RaffleStatusDecided); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"raffle_id":      raffle.RaffleID,
		"winner":         winner.Wallet,
		"winning_ticket": winningTicket,
		"total_tickets":  totalWeight,
		"participants":   len(entries),
		"method":         method,
	}).Info("Winner selected")

	if s.metrics != nil {
		s.metrics.RecordWinnerSelection(method, "success")
	}
	return nil
}

// drawTicket obtains the winning ticket number in [0, totalWeight). The
// oracle path is preferred; any oracle failure falls back to the local draw.
func (s *Selector) drawTicket(ctx context.Context, totalWeight int64) (int64, string, string) {
	if s.oracle != nil {
		value, proof, err := s.oracle.Draw(ctx, totalWeight)
		if err == nil {
			return value, models.SelectionOnChain, proof
		}
		s.logger.WithError(err).Warn("Oracle draw failed, falling back to client-side draw")
		if s.metrics != nil {
			s.metrics.RecordWinnerSelection(models.SelectionOnChain, "error")
		}
	}
	return s.draw(totalWeight), models.SelectionClientSide, ""
}

// cryptoDraw returns a uniform random integer in [0, totalWeight).
func cryptoDraw(totalWeight int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(totalWeight))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		utils.GetLogger().WithError(err).Error("Entropy source failure during winner draw")
		return 0
	}
	return n.Int64()
}
