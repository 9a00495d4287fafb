package token

import (
	"context"
	"time"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/model"
)

// Divide splits an active token into a payment token of paymentAmount and,
// when the payment is partial, a change token for the remainder. The
// source token is marked spent and the children inserted in one atomic
// commit, so payment + change always equals the original amount.
func (m *Manager) Divide(ctx context.Context, tokenID string, paymentAmount int64, requesterID string) (*model.DivideResult, error) {
	if paymentAmount <= 0 {
		return nil, errors.Validationf("payment amount must be positive")
	}

	tok, err := m.ledger.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if ok, reason := m.spendable(tok, requesterID, now); !ok {
		return nil, errors.BusinessRulef("token %s cannot be divided: %s", tokenID, reason)
	}
	if paymentAmount > tok.Amount {
		return nil, errors.Validationf("payment amount %d exceeds token amount %d", paymentAmount, tok.Amount)
	}

	payment, err := m.mint(requesterID, paymentAmount)
	if err != nil {
		return nil, err
	}

	var change *model.Token
	if remainder := tok.Amount - paymentAmount; remainder > 0 {
		change, err = m.mint(requesterID, remainder)
		if err != nil {
			return nil, err
		}
	}

	if err := m.ledger.CommitDivide(ctx, tok.ID, payment, change); err != nil {
		return nil, err
	}
	tok.Status = model.TokenSpent

	m.logger.Info().
		Str("token_id", tok.ID).
		Str("payment_token_id", payment.ID).
		Int64("payment_amount", paymentAmount).
		Int64("change_amount", tok.Amount-paymentAmount).
		Msg("token divided")

	return &model.DivideResult{
		OriginalToken: *tok,
		PaymentToken:  *payment,
		ChangeToken:   change,
	}, nil
}
