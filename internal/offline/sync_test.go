package offline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpay/tokenvault/internal/model"
	"github.com/meridianpay/tokenvault/internal/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store) {
	t.Helper()
	logger := zerolog.New(os.Stderr)

	s, err := store.New(filepath.Join(t.TempDir(), "ledger.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	detector := NewConflictDetector(s, logger)
	return NewCoordinator(s, detector, logger), s
}

func activeToken(t *testing.T, s *store.Store, owner string, amount int64) *model.Token {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	tok := &model.Token{
		ID:              uuid.NewString(),
		OwnerID:         owner,
		Amount:          amount,
		Signature:       "aa",
		IssuerPublicKey: "bb",
		IssuedAt:        now,
		ExpiresAt:       now.Add(time.Hour),
		Status:          model.TokenActive,
	}
	require.NoError(t, s.InsertToken(context.Background(), tok))
	return tok
}

func offlineItem(localID, sender string, tokenIDs ...string) model.ClientTransaction {
	return model.ClientTransaction{
		LocalID:         localID,
		Type:            model.TxOffline,
		Amount:          "25.00",
		SenderID:        sender,
		ReceiverID:      "merchant-1",
		TokenIDs:        tokenIDs,
		SenderSignature: "deadbeef",
		CreatedAt:       time.Now().UTC(),
	}
}

func TestSync_AcceptsOfflineItem(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	tok := activeToken(t, s, "user-1", 2500)
	res := c.Sync(ctx, []model.ClientTransaction{offlineItem("local-1", "user-1", tok.ID)})

	require.Len(t, res.ProcessedTransactions, 1)
	item := res.ProcessedTransactions[0]
	assert.Equal(t, model.ItemAccepted, item.Status)
	assert.Equal(t, "local-1", item.LocalID)
	require.NotEmpty(t, item.ServerTransactionID)
	assert.Empty(t, res.Conflicts)

	tx, err := s.GetTransaction(ctx, item.ServerTransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.TxCompleted, tx.Status)
	assert.Equal(t, int64(2500), tx.Amount)
	assert.Equal(t, []string{tok.ID}, tx.TokenIDs)

	got, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenSpent, got.Status)
}

func TestSync_OnlineItemStaysPending(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	res := c.Sync(ctx, []model.ClientTransaction{{
		LocalID:  "local-1",
		Type:     model.TxOnline,
		Amount:   "10.00",
		SenderID: "user-1",
	}})

	require.Len(t, res.ProcessedTransactions, 1)
	require.Equal(t, model.ItemAccepted, res.ProcessedTransactions[0].Status)

	tx, err := s.GetTransaction(ctx, res.ProcessedTransactions[0].ServerTransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.TxPending, tx.Status)
}

func TestSync_InvalidType(t *testing.T) {
	c, _ := newTestCoordinator(t)

	res := c.Sync(context.Background(), []model.ClientTransaction{{
		LocalID:  "local-1",
		Type:     "wire",
		Amount:   "10.00",
		SenderID: "user-1",
	}})

	require.Len(t, res.ProcessedTransactions, 1)
	assert.Equal(t, model.ItemRejected, res.ProcessedTransactions[0].Status)
	assert.Equal(t, "Invalid transaction type", res.ProcessedTransactions[0].Reason)
}

func TestSync_MissingFields(t *testing.T) {
	c, _ := newTestCoordinator(t)

	res := c.Sync(context.Background(), []model.ClientTransaction{{
		LocalID:  "local-1",
		Type:     model.TxOffline,
		Amount:   "10.00",
		SenderID: "user-1",
	}})

	require.Len(t, res.ProcessedTransactions, 1)
	assert.Equal(t, model.ItemRejected, res.ProcessedTransactions[0].Status)
	assert.Equal(t, "Missing required fields: receiver_id, sender_signature",
		res.ProcessedTransactions[0].Reason)
}

func TestSync_InvalidAmount(t *testing.T) {
	c, _ := newTestCoordinator(t)

	for _, amount := range []string{"abc", "-5", "0", "0.001"} {
		item := offlineItem("local-"+amount, "user-1")
		item.Amount = amount
		res := c.Sync(context.Background(), []model.ClientTransaction{item})
		require.Len(t, res.ProcessedTransactions, 1)
		assert.Equal(t, model.ItemRejected, res.ProcessedTransactions[0].Status, amount)
		assert.Equal(t, "Invalid amount", res.ProcessedTransactions[0].Reason, amount)
	}
}

func TestSync_BatchIndependence(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	first := activeToken(t, s, "user-1", 2500)
	third := activeToken(t, s, "user-1", 2500)

	broken := offlineItem("local-2", "user-1")
	broken.Amount = ""

	res := c.Sync(ctx, []model.ClientTransaction{
		offlineItem("local-1", "user-1", first.ID),
		broken,
		offlineItem("local-3", "user-1", third.ID),
	})

	require.Len(t, res.ProcessedTransactions, 3)
	assert.Equal(t, model.ItemAccepted, res.ProcessedTransactions[0].Status)
	assert.Equal(t, model.ItemRejected, res.ProcessedTransactions[1].Status)
	assert.Equal(t, "Missing required fields: amount", res.ProcessedTransactions[1].Reason)
	assert.Equal(t, model.ItemAccepted, res.ProcessedTransactions[2].Status)
}

func TestSync_TokenNotFound(t *testing.T) {
	c, _ := newTestCoordinator(t)

	res := c.Sync(context.Background(), []model.ClientTransaction{
		offlineItem("local-1", "user-1", "no-such-token"),
	})

	require.Len(t, res.ProcessedTransactions, 1)
	assert.Equal(t, model.ItemRejected, res.ProcessedTransactions[0].Status)
	assert.Equal(t, "Token not found: no-such-token", res.ProcessedTransactions[0].Reason)
}

func TestSync_OwnershipMismatch(t *testing.T) {
	c, s := newTestCoordinator(t)

	tok := activeToken(t, s, "user-2", 2500)
	res := c.Sync(context.Background(), []model.ClientTransaction{
		offlineItem("local-1", "user-1", tok.ID),
	})

	require.Len(t, res.ProcessedTransactions, 1)
	assert.Equal(t, model.ItemRejected, res.ProcessedTransactions[0].Status)
	assert.Equal(t, "Token ownership mismatch: "+tok.ID, res.ProcessedTransactions[0].Reason)

	// The token is untouched.
	got, err := s.GetToken(context.Background(), tok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenActive, got.Status)
}

func TestSync_RedeemedTokenRejectedWithoutConflict(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	// Redeemed out of band: no committed transaction names it, so this is
	// a plain rejection rather than a double-spend conflict.
	tok := activeToken(t, s, "user-1", 2500)
	require.NoError(t, s.MarkTokenStatus(ctx, tok.ID, model.TokenActive, model.TokenRedeemed))

	res := c.Sync(ctx, []model.ClientTransaction{offlineItem("local-1", "user-1", tok.ID)})

	require.Len(t, res.ProcessedTransactions, 1)
	assert.Equal(t, model.ItemRejected, res.ProcessedTransactions[0].Status)
	assert.Equal(t, "Token not active: "+tok.ID, res.ProcessedTransactions[0].Reason)
	assert.Empty(t, res.Conflicts)
}

func TestSync_DoubleSpendWithinBatch(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	tok := activeToken(t, s, "user-1", 2500)
	res := c.Sync(ctx, []model.ClientTransaction{
		offlineItem("local-1", "user-1", tok.ID),
		offlineItem("local-2", "user-1", tok.ID),
	})

	require.Len(t, res.ProcessedTransactions, 2)
	winner := res.ProcessedTransactions[0]
	loser := res.ProcessedTransactions[1]

	assert.Equal(t, model.ItemAccepted, winner.Status)
	assert.Equal(t, model.ItemConflict, loser.Status)
	assert.Equal(t, "Conflict detected: double_spend", loser.Reason)

	require.Len(t, res.Conflicts, 1)
	conflict := res.Conflicts[0]
	assert.Equal(t, "local-2", conflict.LocalID)
	assert.Equal(t, "double_spend", conflict.ConflictType)
	assert.Equal(t, "server_wins", conflict.Resolution)
	require.NotNil(t, conflict.ServerTransaction)
	assert.Equal(t, winner.ServerTransactionID, conflict.ServerTransaction.ID)

	// The token was spent exactly once.
	got, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenSpent, got.Status)
}

func TestSync_DoubleSpendAcrossCalls(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	tok := activeToken(t, s, "user-1", 2500)

	first := c.Sync(ctx, []model.ClientTransaction{offlineItem("local-1", "user-1", tok.ID)})
	require.Equal(t, model.ItemAccepted, first.ProcessedTransactions[0].Status)

	second := c.Sync(ctx, []model.ClientTransaction{offlineItem("local-2", "user-1", tok.ID)})
	require.Len(t, second.ProcessedTransactions, 1)
	assert.Equal(t, model.ItemConflict, second.ProcessedTransactions[0].Status)
	assert.Equal(t, "Conflict detected: double_spend", second.ProcessedTransactions[0].Reason)

	require.Len(t, second.Conflicts, 1)
	require.NotNil(t, second.Conflicts[0].ServerTransaction)
	assert.Equal(t, first.ProcessedTransactions[0].ServerTransactionID,
		second.Conflicts[0].ServerTransaction.ID)
}

func TestSync_IdempotentResubmission(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	tok := activeToken(t, s, "user-1", 2500)
	item := offlineItem("local-1", "user-1", tok.ID)

	first := c.Sync(ctx, []model.ClientTransaction{item})
	require.Equal(t, model.ItemAccepted, first.ProcessedTransactions[0].Status)
	originalID := first.ProcessedTransactions[0].ServerTransactionID

	second := c.Sync(ctx, []model.ClientTransaction{item})
	require.Len(t, second.ProcessedTransactions, 1)
	assert.Equal(t, model.ItemAccepted, second.ProcessedTransactions[0].Status)
	assert.Equal(t, originalID, second.ProcessedTransactions[0].ServerTransactionID)
	assert.Empty(t, second.Conflicts, "resubmission is not a conflict")

	txs, err := s.ListTransactionsBySender(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1, "no duplicate transaction recorded")
}

func TestSync_ItemWithoutTokens(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	res := c.Sync(ctx, []model.ClientTransaction{offlineItem("local-1", "user-1")})

	require.Len(t, res.ProcessedTransactions, 1)
	require.Equal(t, model.ItemAccepted, res.ProcessedTransactions[0].Status)

	tx, err := s.GetTransaction(ctx, res.ProcessedTransactions[0].ServerTransactionID)
	require.NoError(t, err)
	assert.Empty(t, tx.TokenIDs)
	assert.Equal(t, model.TxCompleted, tx.Status)
}

func TestSync_EmptyBatch(t *testing.T) {
	c, _ := newTestCoordinator(t)

	res := c.Sync(context.Background(), nil)
	assert.Empty(t, res.ProcessedTransactions)
	assert.Empty(t, res.Conflicts)
}

func TestFindConflict_OldestWins(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	tokA := activeToken(t, s, "user-1", 1000)
	tokB := activeToken(t, s, "user-1", 1000)

	older := offlineItem("local-1", "user-1", tokA.ID)
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	newer := offlineItem("local-2", "user-1", tokB.ID)

	first := c.Sync(ctx, []model.ClientTransaction{older})
	require.Equal(t, model.ItemAccepted, first.ProcessedTransactions[0].Status)
	second := c.Sync(ctx, []model.ClientTransaction{newer})
	require.Equal(t, model.ItemAccepted, second.ProcessedTransactions[0].Status)

	winner, err := c.detector.FindConflict(ctx, []string{tokB.ID, tokA.ID}, "", nil)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, first.ProcessedTransactions[0].ServerTransactionID, winner.ID)
}
