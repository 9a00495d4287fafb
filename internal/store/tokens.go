package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/model"
)

const tokenColumns = `id, owner_id, amount, signature, issuer_public_key, issued_at, expires_at, status`

// InsertToken persists a newly issued token.
func (s *Store) InsertToken(ctx context.Context, t *model.Token) error {
	return s.insertToken(ctx, s.db, t)
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so ledger writes can run
// standalone or inside an atomic commit.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) insertToken(ctx context.Context, db dbtx, t *model.Token) error {
	if t.Status == "" {
		t.Status = model.TokenActive
	}

	query := `
	INSERT INTO tokens (id, owner_id, amount, signature, issuer_public_key,
		issued_at, expires_at, status, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		t.ID, t.OwnerID, t.Amount, t.Signature, t.IssuerPublicKey,
		t.IssuedAt.UnixMilli(), t.ExpiresAt.UnixMilli(), string(t.Status),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to insert token", err)
	}
	return nil
}

// GetToken retrieves a token by id. A missing row is a typed not-found
// error, never a nil token.
func (s *Store) GetToken(ctx context.Context, id string) (*model.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = ?`
	t, err := scanToken(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("Token not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to get token", err)
	}
	return t, nil
}

// ListTokensByOwner returns all tokens held by an owner, newest first.
func (s *Store) ListTokensByOwner(ctx context.Context, ownerID string) ([]model.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE owner_id = ? ORDER BY issued_at DESC`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to list tokens", err)
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, errors.Wrap(errors.KindInternal, "failed to scan token", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "error iterating tokens", err)
	}
	return tokens, nil
}

// MarkTokenStatus flips a token from one status to another as a
// compare-and-set. Losing the race (0 rows updated) yields a business-rule
// error for an existing token and not-found for an unknown one; the token
// is never moved out of a terminal state.
func (s *Store) MarkTokenStatus(ctx context.Context, id string, from, to model.TokenStatus) error {
	return s.markTokenStatus(ctx, s.db, id, from, to)
}

func (s *Store) markTokenStatus(ctx context.Context, db dbtx, id string, from, to model.TokenStatus) error {
	query := `UPDATE tokens SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, query, string(to), time.Now().UnixMilli(), id, string(from))
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to update token status", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.KindInternal, "failed to get rows affected", err)
	}
	if rows == 0 {
		var exists bool
		if scanErr := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM tokens WHERE id = ?)", id).Scan(&exists); scanErr != nil {
			return errors.Wrap(errors.KindInternal, "failed to check token existence", scanErr)
		}
		if !exists {
			return errors.NotFoundf("Token not found: %s", id)
		}
		return errors.BusinessRulef("Token not active: %s", id)
	}
	return nil
}

// SweepExpired persists the expired status for every active token whose
// expiry is in the past. Expiry is normally derived lazily at validation;
// the sweep is a backstop so stale rows do not linger as active forever.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE tokens SET status = ?, updated_at = ? WHERE status = ? AND expires_at < ?`
	res, err := s.db.ExecContext(ctx, query,
		string(model.TokenExpired), now.UnixMilli(), string(model.TokenActive), now.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(errors.KindInternal, "failed to sweep expired tokens", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*model.Token, error) {
	var (
		t         model.Token
		status    string
		issuedAt  int64
		expiresAt int64
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Amount, &t.Signature, &t.IssuerPublicKey,
		&issuedAt, &expiresAt, &status)
	if err != nil {
		return nil, err
	}
	t.IssuedAt = time.UnixMilli(issuedAt).UTC()
	t.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	t.Status = model.TokenStatus(status)
	return &t, nil
}
