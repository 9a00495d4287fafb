// Package model defines the wallet core's domain types: bearer tokens,
// ledger transactions, and offline sync submissions.
package model

import "time"

// TokenStatus is the lifecycle state of a bearer token. Transitions are
// one-way: active → spent | redeemed | expired. A non-active token never
// returns to active.
type TokenStatus string

const (
	TokenActive   TokenStatus = "active"
	TokenSpent    TokenStatus = "spent"
	TokenRedeemed TokenStatus = "redeemed"
	TokenExpired  TokenStatus = "expired"
)

// Token is a signed record of spendable value. The signature covers
// (ID, OwnerID, Amount, IssuedAt, ExpiresAt) under the issuer key; Amount
// is in minor units and always positive.
type Token struct {
	ID              string      `json:"id"`
	OwnerID         string      `json:"owner_id"`
	Amount          int64       `json:"amount"`
	Signature       string      `json:"signature"`
	IssuerPublicKey string      `json:"issuer_public_key"`
	IssuedAt        time.Time   `json:"issued_at"`
	ExpiresAt       time.Time   `json:"expires_at"`
	Status          TokenStatus `json:"status"`
}

// IsExpired reports whether the token is past its expiry at the given
// instant. Expiry is a derived state checked lazily; the stored status may
// still read active until a sweep persists it.
func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenRef identifies a token presented for redemption together with the
// signature the client holds for it.
type TokenRef struct {
	ID        string `json:"id"`
	Signature string `json:"signature"`
}

// ValidationDetails is the four-way decomposition of a token validation.
// Clients key off the individual flags, not just the boolean.
type ValidationDetails struct {
	SignatureValid bool `json:"signature_valid"`
	NotExpired     bool `json:"not_expired"`
	NotSpent       bool `json:"not_spent"`
	OwnershipValid bool `json:"ownership_valid"`
}

// ValidationResult is the outcome of validating a single token.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Details ValidationDetails `json:"validation_details"`
}

// DivideResult is the outcome of splitting a token. ChangeToken is nil
// when the payment consumed the full amount.
type DivideResult struct {
	OriginalToken Token  `json:"original_token"`
	PaymentToken  Token  `json:"payment_token"`
	ChangeToken   *Token `json:"change_token,omitempty"`
}

// RedeemResult is the outcome of redeeming a batch of tokens.
type RedeemResult struct {
	Amount           int64  `json:"amount"`
	BlockchainTxHash string `json:"blockchain_tx_hash"`
}
