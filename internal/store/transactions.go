package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/model"
)

const txColumns = `id, local_id, sender_id, receiver_id, amount, type, status,
	sender_signature, receiver_signature, blockchain_tx_hash, error_message,
	metadata, created_at`

// InsertTransaction persists a transaction record together with its token
// references.
func (s *Store) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	return s.insertTransaction(ctx, s.db, t)
}

func (s *Store) insertTransaction(ctx context.Context, db dbtx, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TxPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var metadata sql.NullString
	if len(t.Metadata) > 0 {
		raw, err := json.Marshal(t.Metadata)
		if err != nil {
			return errors.Wrap(errors.KindInternal, "failed to encode metadata", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
	INSERT INTO transactions (id, local_id, sender_id, receiver_id, amount,
		type, status, sender_signature, receiver_signature,
		blockchain_tx_hash, error_message, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		t.ID,
		sql.NullString{String: t.LocalID, Valid: t.LocalID != ""},
		sql.NullString{String: t.SenderID, Valid: t.SenderID != ""},
		sql.NullString{String: t.ReceiverID, Valid: t.ReceiverID != ""},
		t.Amount, string(t.Type), string(t.Status),
		sql.NullString{String: t.SenderSignature, Valid: t.SenderSignature != ""},
		sql.NullString{String: t.ReceiverSignature, Valid: t.ReceiverSignature != ""},
		sql.NullString{String: t.BlockchainTxHash, Valid: t.BlockchainTxHash != ""},
		sql.NullString{String: t.ErrorMessage, Valid: t.ErrorMessage != ""},
		metadata,
		t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to insert transaction", err)
	}

	for _, tokenID := range t.TokenIDs {
		_, err := db.ExecContext(ctx,
			`INSERT INTO transaction_tokens (transaction_id, token_id) VALUES (?, ?)`,
			t.ID, tokenID)
		if err != nil {
			return errors.Wrap(errors.KindInternal, "failed to link transaction token", err)
		}
	}
	return nil
}

// GetTransaction retrieves a transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = ?`
	t, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("Transaction not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to get transaction", err)
	}
	if err := s.loadTokenIDs(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTransactionByLocalID retrieves a transaction by the client-side local
// id it was submitted under. Used to make offline resubmissions idempotent.
func (s *Store) GetTransactionByLocalID(ctx context.Context, localID string) (*model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE local_id = ?`
	t, err := scanTransaction(s.db.QueryRowContext(ctx, query, localID))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("Transaction not found: %s", localID)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to get transaction", err)
	}
	if err := s.loadTokenIDs(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// FindCompletedByTokenIDs returns completed transactions referencing any of
// the given token ids, oldest first. This is the committed record the
// conflict detector checks token-id reuse against.
func (s *Store) FindCompletedByTokenIDs(ctx context.Context, tokenIDs []string) ([]model.Transaction, error) {
	if len(tokenIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(tokenIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
	SELECT DISTINCT ` + txColumns + `
	FROM transactions t
	JOIN transaction_tokens tt ON tt.transaction_id = t.id
	WHERE t.status = ? AND tt.token_id IN (` + placeholders + `)
	ORDER BY t.created_at ASC, t.id ASC
	`

	args := make([]any, 0, len(tokenIDs)+1)
	args = append(args, string(model.TxCompleted))
	for _, id := range tokenIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to query conflicting transactions", err)
	}
	defer rows.Close()

	var result []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.Wrap(errors.KindInternal, "failed to scan transaction", err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "error iterating transactions", err)
	}

	for i := range result {
		if err := s.loadTokenIDs(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ListTransactionsBySender returns a sender's transactions, newest first.
func (s *Store) ListTransactionsBySender(ctx context.Context, senderID string) ([]model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE sender_id = ? ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, senderID)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to list transactions", err)
	}
	defer rows.Close()

	var result []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.Wrap(errors.KindInternal, "failed to scan transaction", err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "error iterating transactions", err)
	}
	return result, nil
}

// SetTransactionHash enriches a settled transaction with its blockchain tx
// hash. Hash and error message are the only fields mutable after a
// transaction reaches completed or failed.
func (s *Store) SetTransactionHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET blockchain_tx_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to set transaction hash", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.NotFoundf("Transaction not found: %s", id)
	}
	return nil
}

// SetTransactionError enriches a transaction with a failure message.
func (s *Store) SetTransactionError(ctx context.Context, id, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET error_message = ? WHERE id = ?`, msg, id)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to set transaction error", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.NotFoundf("Transaction not found: %s", id)
	}
	return nil
}

func (s *Store) loadTokenIDs(ctx context.Context, t *model.Transaction) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_id FROM transaction_tokens WHERE transaction_id = ? ORDER BY token_id`, t.ID)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to load token references", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.Wrap(errors.KindInternal, "failed to scan token reference", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.KindInternal, "error iterating token references", err)
	}
	t.TokenIDs = ids
	return nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		t                                      model.Transaction
		localID, senderID, receiverID          sql.NullString
		senderSig, receiverSig, txHash, errMsg sql.NullString
		metadata                               sql.NullString
		txType, status                         string
		createdAt                              int64
	)

	err := row.Scan(&t.ID, &localID, &senderID, &receiverID, &t.Amount,
		&txType, &status, &senderSig, &receiverSig, &txHash, &errMsg,
		&metadata, &createdAt)
	if err != nil {
		return nil, err
	}

	t.LocalID = localID.String
	t.SenderID = senderID.String
	t.ReceiverID = receiverID.String
	t.SenderSignature = senderSig.String
	t.ReceiverSignature = receiverSig.String
	t.BlockchainTxHash = txHash.String
	t.ErrorMessage = errMsg.String
	t.Type = model.TransactionType(txType)
	t.Status = model.TransactionStatus(status)
	t.CreatedAt = time.UnixMilli(createdAt).UTC()

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
