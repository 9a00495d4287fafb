// Package signer holds the issuer keypair and signs/verifies bearer token
// payloads with Ed25519.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meridianpay/tokenvault/internal/model"
)

// Signer signs token payloads under the issuer key and verifies signatures
// under any presented public key. Sign and Verify are deterministic and
// side-effect free.
type Signer struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	logger zerolog.Logger
}

// New loads the issuer's Ed25519 private key from a PKCS#8 PEM file.
func New(keyPath string, logger zerolog.Logger) (*Signer, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read issuer key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("issuer key %s: no PEM block found", keyPath)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse issuer key: %w", err)
	}

	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("issuer key %s: not an Ed25519 key", keyPath)
	}

	return fromKey(priv, logger), nil
}

// NewEphemeral generates a throwaway keypair. Development and tests only —
// tokens signed with an ephemeral key do not survive a restart.
func NewEphemeral(logger zerolog.Logger) (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate issuer key: %w", err)
	}
	logger.Warn().Msg("using ephemeral issuer key; issued tokens will not verify after restart")
	return fromKey(priv, logger), nil
}

func fromKey(priv ed25519.PrivateKey, logger zerolog.Logger) *Signer {
	return &Signer{
		priv:   priv,
		pub:    priv.Public().(ed25519.PublicKey),
		logger: logger.With().Str("component", "signer").Logger(),
	}
}

// PublicKeyHex returns the issuer public key, hex encoded, as recorded on
// every issued token.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

// Sign returns the hex-encoded Ed25519 signature over payload.
func (s *Signer) Sign(payload []byte) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, payload))
}

// Verify checks sigHex over payload under pubHex. Malformed keys or
// signatures yield false rather than an error so callers can report
// structured validation detail.
func (s *Signer) Verify(payload []byte, sigHex, pubHex string) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig)
}

// TokenPayload builds the canonical byte string a token signature covers:
// id|ownerId|amount|issuedAt|expiresAt with times as unix seconds. Status
// is deliberately excluded — it changes after issuance, the signed fields
// never do.
func TokenPayload(t *model.Token) []byte {
	parts := []string{
		t.ID,
		t.OwnerID,
		strconv.FormatInt(t.Amount, 10),
		strconv.FormatInt(t.IssuedAt.Unix(), 10),
		strconv.FormatInt(t.ExpiresAt.Unix(), 10),
	}
	return []byte(strings.Join(parts, "|"))
}
