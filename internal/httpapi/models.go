package httpapi

import "github.com/meridianpay/tokenvault/internal/model"

// ProblemDetail is an RFC 7807 error response body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// IssueRequest is the body for POST /api/v1/tokens. Amount is a decimal
// string in major units, e.g. "100.00".
type IssueRequest struct {
	Amount string `json:"amount"`
}

// DivideRequest is the body for POST /api/v1/tokens/:id/divide.
type DivideRequest struct {
	PaymentAmount string `json:"payment_amount"`
}

// RedeemRequest is the body for POST /api/v1/tokens/redeem.
type RedeemRequest struct {
	Tokens        []model.TokenRef `json:"tokens"`
	PayoutAddress string           `json:"payout_address,omitempty"`
}

// SyncRequest is the body for POST /api/v1/sync/offline.
type SyncRequest struct {
	Transactions []model.ClientTransaction `json:"transactions"`
}

// TokensResponse wraps issued or listed tokens.
type TokensResponse struct {
	Tokens []model.Token `json:"tokens"`
}

// PurchaseResponse pairs purchased tokens with their ledger transaction.
type PurchaseResponse struct {
	Tokens      []model.Token      `json:"tokens"`
	Transaction *model.Transaction `json:"transaction"`
}

// TransactionResponse wraps a single ledger transaction.
type TransactionResponse struct {
	Transaction *model.Transaction `json:"transaction"`
}
