package classify

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/ledger"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// Classifier decides whether a transaction is a genuine exchange swap.
// Naive transfer-event monitoring credits tickets for wallet-to-wallet
// transfers that are not purchases; this check filters those out.
type Classifier interface {
	IsExchangeSwap(ctx context.Context, txRef string) bool
}

// Function-name substrings that identify a swap regardless of package.
var swapFunctionHints = []string{"swap", "trade", "exchange"}

// SwapClassifier implements Classifier against the ledger's transaction
// lookup.
type SwapClassifier struct {
	client           ledger.Client
	exchangePackages map[string]struct{}
	logger           *logrus.Logger

	mu    sync.RWMutex
	stats ClassifierStats
}

// ClassifierStats holds classification counters
type ClassifierStats struct {
	Classified    uint64 `json:"classified"`
	Swaps         uint64 `json:"swaps"`
	Transfers     uint64 `json:"transfers"`
	LookupErrors  uint64 `json:"lookup_errors"`
}

// NewSwapClassifier creates a new swap classifier. exchangePackages lists the
// package IDs of known automated-market-maker contracts.
func NewSwapClassifier(client ledger.Client, exchangePackages []string) *SwapClassifier {
	known := make(map[string]struct{}, len(exchangePackages))
	for _, pkg := range exchangePackages {
		known[strings.ToLower(pkg)] = struct{}{}
	}

	return &SwapClassifier{
		client:           client,
		exchangePackages: known,
		logger:           utils.GetLogger(),
	}
}

// IsExchangeSwap reports whether the transaction behind txRef invoked an
// exchange swap. On any lookup error the answer is false: a conservative
// false negative is preferred over crediting a non-purchase.
func (sc *SwapClassifier) IsExchangeSwap(ctx context.Context, txRef string) bool {
	sc.mu.Lock()
	sc.stats.Classified++
	sc.mu.Unlock()

	tx, err := sc.client.GetTransaction(ctx, txRef)
	if err != nil {
		sc.logger.WithError(err).WithField("tx_ref", txRef).
			Warn("Transaction lookup failed, treating as non-swap")
		sc.mu.Lock()
		sc.stats.LookupErrors++
		sc.mu.Unlock()
		return false
	}

	swap := sc.classify(tx)

	sc.mu.Lock()
	if swap {
		sc.stats.Swaps++
	} else {
		sc.stats.Transfers++
	}
	sc.mu.Unlock()

	return swap
}

// classify applies the heuristic to a fetched call structure.
func (sc *SwapClassifier) classify(tx *ledger.Transaction) bool {
	// No contract invocations at all: a pure asset transfer, never a swap.
	if len(tx.Calls) == 0 {
		return false
	}

	for _, call := range tx.Calls {
		if _, known := sc.exchangePackages[strings.ToLower(call.Package)]; known {
			return true
		}

		function := strings.ToLower(call.Function)
		for _, hint := range swapFunctionHints {
			if strings.Contains(function, hint) {
				return true
			}
		}
	}

	return false
}

// Stats returns classification counters
func (sc *SwapClassifier) Stats() ClassifierStats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats
}
