// Package offline reconciles batches of transactions created while a
// client was disconnected: it validates each item, detects double-spends
// against the committed record, and commits accepted items atomically.
package offline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meridianpay/tokenvault/internal/model"
)

// TransactionIndex looks up committed transactions by the token ids they
// consumed.
type TransactionIndex interface {
	FindCompletedByTokenIDs(ctx context.Context, tokenIDs []string) ([]model.Transaction, error)
}

// ConflictDetector decides whether a candidate transaction double-spends a
// token that an earlier transaction already consumed. It purely checks
// token-id reuse against the committed record plus items accepted earlier
// in the same batch; it never recomputes balances or re-verifies
// signatures.
type ConflictDetector struct {
	index  TransactionIndex
	logger zerolog.Logger
}

// NewConflictDetector creates a detector over the given transaction index.
func NewConflictDetector(index TransactionIndex, logger zerolog.Logger) *ConflictDetector {
	return &ConflictDetector{
		index:  index,
		logger: logger.With().Str("component", "conflict_detector").Logger(),
	}
}

// FindConflict returns the earliest committed transaction whose token ids
// intersect candidateTokenIDs, or nil when none exists. Transactions
// carrying excludeLocalID are skipped so a resubmission never conflicts
// with itself. batch holds transactions accepted earlier in the current
// sync call keyed by consumed token id; those count as committed even when
// still pending.
func (d *ConflictDetector) FindConflict(ctx context.Context, candidateTokenIDs []string, excludeLocalID string, batch map[string]*model.Transaction) (*model.Transaction, error) {
	if len(candidateTokenIDs) == 0 {
		return nil, nil
	}

	existing, err := d.index.FindCompletedByTokenIDs(ctx, candidateTokenIDs)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if excludeLocalID != "" && existing[i].LocalID == excludeLocalID {
			continue
		}
		d.logger.Debug().
			Str("server_tx_id", existing[i].ID).
			Str("local_id", excludeLocalID).
			Msg("double spend against committed transaction")
		return &existing[i], nil
	}

	for _, id := range candidateTokenIDs {
		if prior, ok := batch[id]; ok && prior.LocalID != excludeLocalID {
			d.logger.Debug().
				Str("server_tx_id", prior.ID).
				Str("token_id", id).
				Msg("double spend within sync batch")
			return prior, nil
		}
	}
	return nil, nil
}
