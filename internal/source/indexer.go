package source

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/indexer"
	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// maxPagesPerPoll bounds cursor pagination within a single poll so one slow
// catch-up cannot starve the watcher's timer.
const maxPagesPerPoll = 3

// IndexerSource polls the third-party trade-indexing API. It is the
// preferred, higher-throughput source when configured.
type IndexerSource struct {
	client   indexer.Client
	coinType string
	side     string // "buy", "sell" or "" for both
	decimals *CoinDecimals
	logger   *logrus.Logger
}

// NewIndexerSource creates an indexer-backed event source. side filters
// trade rows by direction when the watcher only wants one. decimals may be
// nil when every trade row is known to carry its own decimals.
func NewIndexerSource(client indexer.Client, coinType, side string, decimals *CoinDecimals) *IndexerSource {
	return &IndexerSource{
		client:   client,
		coinType: coinType,
		side:     side,
		decimals: decimals,
		logger:   utils.GetLogger(),
	}
}

// Name identifies the source in logs and metrics.
func (s *IndexerSource) Name() string { return "indexer" }

// Poll fetches the newest trades and pages forward with the cursor while
// entire pages are still newer than sinceMs, then returns everything in
// ascending timestamp order.
func (s *IndexerSource) Poll(ctx context.Context, sinceMs int64, limit int) ([]models.NormalizedEvent, error) {
	var events []models.NormalizedEvent

	cursor := ""
	for page := 0; page < maxPagesPerPoll; page++ {
		result, err := s.client.FetchTrades(ctx, s.coinType, indexer.FetchOptions{
			Limit:  limit,
			Cursor: cursor,
		})
		if err != nil {
			return nil, err
		}

		sawOld := false
		for _, trade := range result.Trades {
			event, ok := FromTrade(trade, s.coinType)
			if !ok {
				s.logger.Warn("Dropping indexer trade without transaction digest")
				continue
			}
			if event.TimestampMs <= sinceMs {
				sawOld = true
				continue
			}
			if s.side != "" {
				side, _ := trade.Side()
				if side != "" && !strings.EqualFold(side, s.side) {
					continue
				}
			}
			if err := s.decimals.fill(ctx, &event, s.coinType); err != nil {
				return nil, err
			}
			events = append(events, event)
		}

		// Stop paging once the page reached already-processed history, ran
		// dry, or the indexer has no further cursor.
		if sawOld || len(result.Trades) == 0 || result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TimestampMs < events[j].TimestampMs
	})

	return events, nil
}
