package source

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/ledger"
	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// LedgerSource polls the ledger query client directly for one event type.
type LedgerSource struct {
	client    ledger.Client
	eventType string
	coinType  string
	decimals  *CoinDecimals
	logger    *logrus.Logger
}

// NewLedgerSource creates a ledger-backed event source. coinType filters out
// events the exchange emits for other tokens; empty means no filtering.
// decimals may be nil when every payload is known to carry its own decimals.
func NewLedgerSource(client ledger.Client, eventType, coinType string, decimals *CoinDecimals) *LedgerSource {
	return &LedgerSource{
		client:    client,
		eventType: eventType,
		coinType:  coinType,
		decimals:  decimals,
		logger:    utils.GetLogger(),
	}
}

// Name identifies the source in logs and metrics.
func (s *LedgerSource) Name() string { return "ledger" }

// Poll queries the most recent events (the ledger delivers newest-first),
// drops everything at or before sinceMs, and returns the remainder in
// ascending timestamp order.
func (s *LedgerSource) Poll(ctx context.Context, sinceMs int64, limit int) ([]models.NormalizedEvent, error) {
	raw, err := s.client.QueryEvents(ctx, s.eventType, limit, true)
	if err != nil {
		return nil, err
	}

	events := make([]models.NormalizedEvent, 0, len(raw))
	for _, record := range raw {
		event, ok := FromLedgerEvent(record)
		if !ok {
			s.logger.WithField("event_type", s.eventType).
				Warn("Dropping ledger event without transaction digest")
			continue
		}
		if event.TimestampMs <= sinceMs {
			continue
		}
		if s.coinType != "" && event.CoinType != "" && event.CoinType != s.coinType {
			continue
		}
		if err := s.decimals.fill(ctx, &event, s.coinType); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	// Newest-first from the node; the watcher needs ascending order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TimestampMs < events[j].TimestampMs
	})

	return events, nil
}
