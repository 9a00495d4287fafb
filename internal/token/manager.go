// Package token implements the bearer-token lifecycle: issuance,
// validation, division (making change) and redemption.
package token

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/model"
	"github.com/meridianpay/tokenvault/internal/signer"
	"github.com/meridianpay/tokenvault/lru"
)

// Ledger is the slice of the store the manager needs: token rows,
// transaction rows, and the atomic multi-row commits.
type Ledger interface {
	InsertToken(ctx context.Context, t *model.Token) error
	GetToken(ctx context.Context, id string) (*model.Token, error)
	ListTokensByOwner(ctx context.Context, ownerID string) ([]model.Token, error)
	CommitDivide(ctx context.Context, sourceID string, payment, change *model.Token) error
	MarkTokensRedeemed(ctx context.Context, tokenIDs []string) error
	InsertTransaction(ctx context.Context, t *model.Transaction) error
}

// Signer signs and verifies token payloads.
type Signer interface {
	Sign(payload []byte) string
	Verify(payload []byte, sigHex, pubHex string) bool
	PublicKeyHex() string
}

// Gateway settles redemptions on the external chain.
type Gateway interface {
	Transfer(ctx context.Context, address string, amount int64) (string, error)
}

// Config holds issuance policy knobs.
type Config struct {
	TokenTTL       time.Duration
	MaxRedeemBatch int
}

// DefaultConfig returns the issuance policy used when no policy file is
// configured.
func DefaultConfig() Config {
	return Config{
		TokenTTL:       72 * time.Hour,
		MaxRedeemBatch: 100,
	}
}

// Manager issues, validates, divides and redeems bearer tokens. All
// collaborators are injected; the manager keeps no global state beyond a
// bounded signature-verification cache.
type Manager struct {
	ledger  Ledger
	signer  Signer
	gateway Gateway
	cfg     Config
	logger  zerolog.Logger

	// Signatures cover immutable fields only, so a verify result can be
	// cached for the life of the token.
	verifyCache *lru.Cache[string, bool]
}

// NewManager creates a token manager.
func NewManager(ledger Ledger, sig Signer, gateway Gateway, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	if cfg.MaxRedeemBatch <= 0 {
		cfg.MaxRedeemBatch = DefaultConfig().MaxRedeemBatch
	}
	return &Manager{
		ledger:      ledger,
		signer:      sig,
		gateway:     gateway,
		cfg:         cfg,
		logger:      logger.With().Str("component", "token_manager").Logger(),
		verifyCache: lru.New[string, bool](4096),
	}
}

// Issue mints a new active token of the given amount (minor units) for
// ownerID, signs it under the issuer key, and persists it.
func (m *Manager) Issue(ctx context.Context, ownerID string, amount int64) ([]model.Token, error) {
	if ownerID == "" {
		return nil, errors.Validationf("owner id is required")
	}
	if amount <= 0 {
		return nil, errors.Validationf("amount must be positive")
	}

	tok, err := m.mint(ownerID, amount)
	if err != nil {
		return nil, err
	}
	if err := m.ledger.InsertToken(ctx, tok); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("token_id", tok.ID).
		Str("owner_id", ownerID).
		Int64("amount", amount).
		Msg("token issued")

	return []model.Token{*tok}, nil
}

// Purchase issues a token and records the completed token_purchase
// transaction that paid for it.
func (m *Manager) Purchase(ctx context.Context, ownerID string, amount int64) ([]model.Token, *model.Transaction, error) {
	tokens, err := m.Issue(ctx, ownerID, amount)
	if err != nil {
		return nil, nil, err
	}

	tx := &model.Transaction{
		ID:         uuid.NewString(),
		ReceiverID: ownerID,
		Amount:     amount,
		Type:       model.TxPurchase,
		Status:     model.TxCompleted,
		TokenIDs:   []string{tokens[0].ID},
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.ledger.InsertTransaction(ctx, tx); err != nil {
		return nil, nil, err
	}
	return tokens, tx, nil
}

// mint builds and signs a fresh active token. The ledger write is the
// caller's responsibility so divisions can batch children into one commit.
func (m *Manager) mint(ownerID string, amount int64) (*model.Token, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	tok := &model.Token{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Amount:          amount,
		IssuerPublicKey: m.signer.PublicKeyHex(),
		IssuedAt:        now,
		ExpiresAt:       now.Add(m.cfg.TokenTTL),
		Status:          model.TokenActive,
	}
	tok.Signature = m.signer.Sign(signer.TokenPayload(tok))
	return tok, nil
}

// verifySignature checks a token's issuer signature, caching the result by
// (id, signature).
func (m *Manager) verifySignature(t *model.Token, sigHex string) bool {
	key := t.ID + "|" + sigHex
	if ok, hit := m.verifyCache.Get(key); hit {
		return ok
	}
	ok := m.signer.Verify(signer.TokenPayload(t), sigHex, t.IssuerPublicKey)
	m.verifyCache.Put(key, ok)
	return ok
}
