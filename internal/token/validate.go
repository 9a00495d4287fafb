package token

import (
	"context"
	"time"

	"github.com/meridianpay/tokenvault/internal/model"
)

// Validate checks a token against the four validity criteria. It only
// fails for an unknown token id; a found-but-invalid token reports which
// checks failed through the details flags.
func (m *Manager) Validate(ctx context.Context, tokenID, requesterID string) (*model.ValidationResult, error) {
	tok, err := m.ledger.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	details := m.validateToken(tok, requesterID, time.Now().UTC())
	return &model.ValidationResult{
		Valid:   details.SignatureValid && details.NotExpired && details.NotSpent && details.OwnershipValid,
		Details: details,
	}, nil
}

// validateToken computes the four validation flags. Expiry is derived from
// the clock even when the stored status still reads active.
func (m *Manager) validateToken(tok *model.Token, requesterID string, now time.Time) model.ValidationDetails {
	return model.ValidationDetails{
		SignatureValid: m.verifySignature(tok, tok.Signature),
		NotExpired:     !tok.IsExpired(now) && tok.Status != model.TokenExpired,
		NotSpent:       tok.Status == model.TokenActive || tok.Status == model.TokenExpired,
		OwnershipValid: tok.OwnerID == requesterID,
	}
}

// spendable reports whether a token can be consumed right now by the given
// owner, with the reason kind when it cannot.
func (m *Manager) spendable(tok *model.Token, requesterID string, now time.Time) (bool, string) {
	switch {
	case tok.OwnerID != requesterID:
		return false, "not owned by requester"
	case tok.Status != model.TokenActive:
		return false, "not active"
	case tok.IsExpired(now):
		return false, "expired"
	}
	return true, ""
}
