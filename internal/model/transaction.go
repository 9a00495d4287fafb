package model

import "time"

// TransactionType classifies how value moved.
type TransactionType string

const (
	TxOnline     TransactionType = "online"
	TxOffline    TransactionType = "offline"
	TxPurchase   TransactionType = "token_purchase"
	TxRedemption TransactionType = "token_redemption"
)

// IsValidTransactionType reports whether t names a known transaction type.
func IsValidTransactionType(t TransactionType) bool {
	switch t {
	case TxOnline, TxOffline, TxPurchase, TxRedemption:
		return true
	}
	return false
}

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// Transaction is the durable audit record of a value movement. Once
// completed or failed it is immutable except for blockchain hash and error
// message enrichment.
type Transaction struct {
	ID                string            `json:"id"`
	LocalID           string            `json:"local_id,omitempty"`
	SenderID          string            `json:"sender_id,omitempty"`
	ReceiverID        string            `json:"receiver_id,omitempty"`
	Amount            int64             `json:"amount"`
	Type              TransactionType   `json:"type"`
	Status            TransactionStatus `json:"status"`
	TokenIDs          []string          `json:"token_ids,omitempty"`
	SenderSignature   string            `json:"sender_signature,omitempty"`
	ReceiverSignature string            `json:"receiver_signature,omitempty"`
	BlockchainTxHash  string            `json:"blockchain_tx_hash,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// ClientTransaction is one item of an offline sync batch as submitted by a
// client. Amount arrives as a decimal string and is parsed exactly.
type ClientTransaction struct {
	LocalID         string            `json:"local_id"`
	Type            TransactionType   `json:"type"`
	Amount          string            `json:"amount"`
	SenderID        string            `json:"sender_id"`
	ReceiverID      string            `json:"receiver_id,omitempty"`
	TokenIDs        []string          `json:"token_ids,omitempty"`
	SenderSignature string            `json:"sender_signature,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ItemStatus is the per-item outcome of a sync batch.
type ItemStatus string

const (
	ItemAccepted ItemStatus = "accepted"
	ItemConflict ItemStatus = "conflict"
	ItemRejected ItemStatus = "rejected"
)

// ProcessedTransaction is the server's verdict on one submitted item.
type ProcessedTransaction struct {
	LocalID             string     `json:"local_id"`
	Status              ItemStatus `json:"status"`
	ServerTransactionID string     `json:"server_transaction_id,omitempty"`
	Reason              string     `json:"reason,omitempty"`
}

// Conflict records a double-spend resolved in favor of the transaction
// already committed on the server.
type Conflict struct {
	LocalID           string       `json:"local_id"`
	ConflictType      string       `json:"conflict_type"`
	Resolution        string       `json:"resolution"`
	ServerTransaction *Transaction `json:"server_transaction,omitempty"`
}

// SyncResult is the complete outcome of one sync call: one entry per
// submitted item plus a conflict record for each double-spend.
type SyncResult struct {
	ProcessedTransactions []ProcessedTransaction `json:"processed_transactions"`
	Conflicts             []Conflict             `json:"conflicts"`
}
