package token

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/model"
)

// Redeem validates every presented token (signature, active, owned by the
// requester), marks the whole batch redeemed atomically, then settles the
// summed value through the blockchain gateway and records a
// token_redemption transaction. Any invalid token rejects the batch before
// a single ledger mutation; a gateway failure after the flip is terminal
// (transaction recorded as failed, no internal retry — callers resubmit
// idempotently by transaction id).
func (m *Manager) Redeem(ctx context.Context, requesterID, payoutAddress string, refs []model.TokenRef) (*model.RedeemResult, error) {
	if len(refs) == 0 {
		return nil, errors.Validationf("no tokens to redeem")
	}
	if len(refs) > m.cfg.MaxRedeemBatch {
		return nil, errors.Validationf("redemption batch exceeds limit of %d tokens", m.cfg.MaxRedeemBatch)
	}
	if payoutAddress == "" {
		payoutAddress = "wallet:" + requesterID
	}

	now := time.Now().UTC()
	var total int64
	tokenIDs := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))

	for _, ref := range refs {
		if seen[ref.ID] {
			return nil, errors.BusinessRulef("Token listed twice: %s", ref.ID)
		}
		seen[ref.ID] = true

		tok, err := m.ledger.GetToken(ctx, ref.ID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.BusinessRulef("Token not found: %s", ref.ID)
			}
			return nil, err
		}
		if !m.verifySignature(tok, ref.Signature) {
			return nil, errors.BusinessRulef("Invalid token signature: %s", ref.ID)
		}
		if ok, reason := m.spendable(tok, requesterID, now); !ok {
			if reason == "not owned by requester" {
				return nil, errors.BusinessRulef("Token ownership mismatch: %s", ref.ID)
			}
			return nil, errors.BusinessRulef("Token not active: %s", ref.ID)
		}

		total += tok.Amount
		tokenIDs = append(tokenIDs, ref.ID)
	}

	// The batch is valid: flip all tokens in one atomic commit.
	if err := m.ledger.MarkTokensRedeemed(ctx, tokenIDs); err != nil {
		return nil, err
	}

	tx := &model.Transaction{
		ID:        uuid.NewString(),
		SenderID:  requesterID,
		Amount:    total,
		Type:      model.TxRedemption,
		TokenIDs:  tokenIDs,
		CreatedAt: time.Now().UTC(),
	}

	hash, err := m.gateway.Transfer(ctx, payoutAddress, total)
	if err != nil {
		tx.Status = model.TxFailed
		tx.ErrorMessage = errors.Message(err)
		if insertErr := m.ledger.InsertTransaction(ctx, tx); insertErr != nil {
			m.logger.Error().Err(insertErr).Msg("failed to record failed redemption")
		}
		m.logger.Error().Err(err).
			Str("requester_id", requesterID).
			Int64("amount", total).
			Msg("redemption transfer failed")
		return nil, errors.Wrap(errors.KindExternal, "blockchain transfer failed", err)
	}

	tx.Status = model.TxCompleted
	tx.BlockchainTxHash = hash
	if err := m.ledger.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("requester_id", requesterID).
		Int("token_count", len(tokenIDs)).
		Int64("amount", total).
		Str("tx_hash", hash).
		Msg("tokens redeemed")

	return &model.RedeemResult{Amount: total, BlockchainTxHash: hash}, nil
}
