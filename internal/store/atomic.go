package store

import (
	"context"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/model"
)

// CommitSpend records a transaction and flips every token it consumes from
// active to spent as one unit. If any token lost the race (already
// non-active), nothing is written: a token is never left active while a
// completed transaction references it, and never spent without the
// transaction that consumed it.
func (s *Store) CommitSpend(ctx context.Context, t *model.Transaction, spentTokenIDs []string) error {
	return s.withTx(ctx, func(tx dbtx) error {
		for _, id := range spentTokenIDs {
			if err := s.markTokenStatus(ctx, tx, id, model.TokenActive, model.TokenSpent); err != nil {
				return err
			}
		}
		return s.insertTransaction(ctx, tx, t)
	})
}

// CommitDivide atomically marks the source token spent and inserts the
// payment token plus, for partial payments, the change token. The caller
// guarantees child amounts sum to the source amount.
func (s *Store) CommitDivide(ctx context.Context, sourceID string, payment *model.Token, change *model.Token) error {
	return s.withTx(ctx, func(tx dbtx) error {
		if err := s.markTokenStatus(ctx, tx, sourceID, model.TokenActive, model.TokenSpent); err != nil {
			return err
		}
		if err := s.insertToken(ctx, tx, payment); err != nil {
			return err
		}
		if change != nil {
			if err := s.insertToken(ctx, tx, change); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkTokensRedeemed flips a batch of tokens from active to redeemed,
// all-or-nothing. A single non-active token rejects the whole batch with
// no partial redemption.
func (s *Store) MarkTokensRedeemed(ctx context.Context, tokenIDs []string) error {
	return s.withTx(ctx, func(tx dbtx) error {
		for _, id := range tokenIDs {
			if err := s.markTokenStatus(ctx, tx, id, model.TokenActive, model.TokenRedeemed); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx runs fn inside a database transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx dbtx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.KindInternal, "failed to commit transaction", err)
	}
	return nil
}
