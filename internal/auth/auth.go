// Package auth verifies agent bearer tokens. Tokens are EdDSA-signed JWTs
// issued by an external identity provider; this package holds only the
// public key and never signs anything in production.
package auth

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vigil-labs/vigil/internal/model"
)

// Claims extends jwt.RegisteredClaims with the agent identity fields the
// gate needs. MaturityLevel is authoritative when present: a token-borne
// level overrides whatever the request body claims.
type Claims struct {
	jwt.RegisteredClaims
	AgentID       string `json:"agent_id"`
	MaturityLevel int    `json:"maturity_level"`
}

// Verifier validates bearer tokens against a single Ed25519 public key.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier loads the Ed25519 public key from a PEM file.
func NewVerifier(publicKeyPath string) (*Verifier, error) {
	pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // path comes from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}
	return NewVerifierFromPEM(pubPEM)
}

// NewVerifierFromPEM builds a Verifier from PEM-encoded PKIX key bytes.
func NewVerifierFromPEM(pubPEM []byte) (*Verifier, error) {
	block, _ := pem.Decode(pubPEM)
	if block == nil {
		return nil, fmt.Errorf("auth: decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}
	return &Verifier{publicKey: edPub}, nil
}

// ValidateToken parses and validates a JWT, returning the claims. Expiry
// and not-before are enforced by the parser; the maturity level range is
// enforced here so a forged or buggy issuer cannot push an agent outside
// the recognised levels.
func (v *Verifier) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return v.publicKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if claims.AgentID == "" {
		return nil, fmt.Errorf("auth: token missing agent_id claim")
	}
	if claims.MaturityLevel < model.MinMaturityLevel || claims.MaturityLevel > model.MaxMaturityLevel {
		return nil, fmt.Errorf("auth: maturity level %d outside [%d,%d]",
			claims.MaturityLevel, model.MinMaturityLevel, model.MaxMaturityLevel)
	}

	return claims, nil
}
