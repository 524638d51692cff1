package source

import (
	"context"

	"github.com/raffleworks/raffle-engine/internal/models"
)

// Source is a polymorphic event source: the raw ledger query backend or the
// third-party indexing API. Poll returns events strictly newer than sinceMs
// in ascending timestamp order; implementations must reverse results that
// arrive newest-first so watermark advancement stays idempotent.
type Source interface {
	Name() string
	Poll(ctx context.Context, sinceMs int64, limit int) ([]models.NormalizedEvent, error)
}
