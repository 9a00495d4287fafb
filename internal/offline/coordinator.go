package offline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/model"
)

// Ledger is the slice of the store the coordinator needs.
type Ledger interface {
	GetToken(ctx context.Context, id string) (*model.Token, error)
	GetTransactionByLocalID(ctx context.Context, localID string) (*model.Transaction, error)
	InsertTransaction(ctx context.Context, t *model.Transaction) error
	CommitSpend(ctx context.Context, t *model.Transaction, spentTokenIDs []string) error
}

// Coordinator validates, orders, and commits batches of client-submitted
// transactions. Items are processed sequentially in submission order: an
// earlier item may legitimately consume a token a later item also
// references, and sequential processing makes earliest-wins deterministic.
type Coordinator struct {
	ledger   Ledger
	detector *ConflictDetector
	logger   zerolog.Logger
}

// NewCoordinator creates a sync coordinator.
func NewCoordinator(ledger Ledger, detector *ConflictDetector, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		ledger:   ledger,
		detector: detector,
		logger:   logger.With().Str("component", "sync_coordinator").Logger(),
	}
}

// Sync processes a batch of offline-created transactions and returns a
// complete per-item outcome array plus a conflict record for each detected
// double-spend. The call itself never fails on an item: every error is
// converted into a rejected or conflict outcome, and one item's failure
// never aborts the rest of the batch.
//
// Resubmitting an item whose local id was already accepted is idempotent:
// the original server transaction id is returned again and no second
// conflict is recorded.
func (c *Coordinator) Sync(ctx context.Context, items []model.ClientTransaction) *model.SyncResult {
	result := &model.SyncResult{
		ProcessedTransactions: make([]model.ProcessedTransaction, 0, len(items)),
		Conflicts:             []model.Conflict{},
	}

	// Tokens consumed by items accepted earlier in this batch. Pending
	// (online) items are invisible to the completed-transaction index, so
	// the in-batch view is what makes earliest-wins hold within one call.
	batch := make(map[string]*model.Transaction)

	for i := range items {
		outcome := c.processItem(ctx, &items[i], batch, result)
		result.ProcessedTransactions = append(result.ProcessedTransactions, outcome)
	}

	c.logger.Info().
		Int("items", len(items)).
		Int("conflicts", len(result.Conflicts)).
		Msg("sync batch processed")
	return result
}

func (c *Coordinator) processItem(ctx context.Context, item *model.ClientTransaction, batch map[string]*model.Transaction, result *model.SyncResult) model.ProcessedTransaction {
	rejected := func(reason string) model.ProcessedTransaction {
		c.logger.Warn().
			Str("local_id", item.LocalID).
			Str("reason", reason).
			Msg("sync item rejected")
		return model.ProcessedTransaction{
			LocalID: item.LocalID,
			Status:  model.ItemRejected,
			Reason:  reason,
		}
	}

	// Idempotent resubmission: a local id already committed returns its
	// original server transaction.
	if item.LocalID != "" {
		prior, err := c.ledger.GetTransactionByLocalID(ctx, item.LocalID)
		switch {
		case err == nil:
			return model.ProcessedTransaction{
				LocalID:             item.LocalID,
				Status:              model.ItemAccepted,
				ServerTransactionID: prior.ID,
			}
		case !errors.IsNotFound(err):
			return rejected(errors.Message(err))
		}
	}

	if !model.IsValidTransactionType(item.Type) {
		return rejected("Invalid transaction type")
	}
	if missing := missingFields(item); len(missing) > 0 {
		return rejected("Missing required fields: " + strings.Join(missing, ", "))
	}
	amount, err := model.ParseAmount(item.Amount)
	if err != nil {
		return rejected("Invalid amount")
	}

	// Every referenced token must exist and belong to the sender. A
	// non-active token is noted but not rejected yet: if a committed
	// transaction consumed it, that is a double-spend and the conflict
	// outcome takes precedence over a plain rejection.
	now := time.Now().UTC()
	var inactiveReason string
	for _, id := range item.TokenIDs {
		tok, err := c.ledger.GetToken(ctx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				return rejected("Token not found: " + id)
			}
			return rejected(errors.Message(err))
		}
		if tok.OwnerID != item.SenderID {
			return rejected("Token ownership mismatch: " + id)
		}
		if inactiveReason == "" && (tok.Status != model.TokenActive || tok.IsExpired(now)) {
			inactiveReason = "Token not active: " + id
		}
	}

	conflicting, err := c.detector.FindConflict(ctx, item.TokenIDs, item.LocalID, batch)
	if err != nil {
		return rejected(errors.Message(err))
	}
	if conflicting != nil {
		return c.conflictOutcome(item, conflicting, result)
	}
	if inactiveReason != "" {
		return rejected(inactiveReason)
	}

	tx := serverTransaction(item, amount)
	if err := c.commit(ctx, tx, item.TokenIDs); err != nil {
		// A compare-and-set miss means another writer consumed a token
		// between our check and the commit; surface it as the conflict it
		// is when the committed record can name the winner.
		if errors.IsBusinessRule(err) {
			if winner, findErr := c.detector.FindConflict(ctx, item.TokenIDs, item.LocalID, batch); findErr == nil && winner != nil {
				return c.conflictOutcome(item, winner, result)
			}
		}
		return rejected(errors.Message(err))
	}

	for _, id := range item.TokenIDs {
		batch[id] = tx
	}

	c.logger.Info().
		Str("local_id", item.LocalID).
		Str("server_tx_id", tx.ID).
		Str("type", string(tx.Type)).
		Msg("sync item accepted")
	return model.ProcessedTransaction{
		LocalID:             item.LocalID,
		Status:              model.ItemAccepted,
		ServerTransactionID: tx.ID,
	}
}

func (c *Coordinator) conflictOutcome(item *model.ClientTransaction, winner *model.Transaction, result *model.SyncResult) model.ProcessedTransaction {
	c.logger.Warn().
		Str("local_id", item.LocalID).
		Str("server_tx_id", winner.ID).
		Msg("double spend resolved server wins")
	result.Conflicts = append(result.Conflicts, model.Conflict{
		LocalID:           item.LocalID,
		ConflictType:      "double_spend",
		Resolution:        "server_wins",
		ServerTransaction: winner,
	})
	return model.ProcessedTransaction{
		LocalID: item.LocalID,
		Status:  model.ItemConflict,
		Reason:  "Conflict detected: double_spend",
	}
}

func (c *Coordinator) commit(ctx context.Context, tx *model.Transaction, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return c.ledger.InsertTransaction(ctx, tx)
	}
	return c.ledger.CommitSpend(ctx, tx, tokenIDs)
}

// serverTransaction builds the ledger record for an accepted item.
// Offline submissions are already settled between the parties, so they
// land completed; online items stay pending until external confirmation.
func serverTransaction(item *model.ClientTransaction, amount int64) *model.Transaction {
	status := model.TxCompleted
	if item.Type == model.TxOnline {
		status = model.TxPending
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &model.Transaction{
		ID:              uuid.NewString(),
		LocalID:         item.LocalID,
		SenderID:        item.SenderID,
		ReceiverID:      item.ReceiverID,
		Amount:          amount,
		Type:            item.Type,
		Status:          status,
		TokenIDs:        item.TokenIDs,
		SenderSignature: item.SenderSignature,
		CreatedAt:       createdAt,
		Metadata:        item.Metadata,
	}
}

// missingFields lists the required fields absent from an item, in a fixed
// order so rejection reasons are stable.
func missingFields(item *model.ClientTransaction) []string {
	var missing []string
	if item.SenderID == "" {
		missing = append(missing, "sender_id")
	}
	if item.Amount == "" {
		missing = append(missing, "amount")
	}
	if item.Type == model.TxOffline {
		if item.ReceiverID == "" {
			missing = append(missing, "receiver_id")
		}
		if item.SenderSignature == "" {
			missing = append(missing, "sender_signature")
		}
	}
	if item.Type == model.TxRedemption && item.SenderSignature == "" {
		missing = append(missing, "sender_signature")
	}
	return missing
}
