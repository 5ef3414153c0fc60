// Package signer computes and verifies the keyed MAC that makes verdicts
// non-repudiable. The MAC is HMAC-SHA256 over the RFC 8785 canonical JSON of
// a fixed subset of verdict fields, so any downstream auditor holding the
// secret can re-derive and check it byte for byte.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/vigil-labs/vigil/internal/model"
)

// signedFields is the canonical payload the MAC covers. The field set is
// fixed: decision, reason, trace_id, and the constant validator_name "gate".
// JCS transformation sorts the keys, so struct order here is immaterial.
type signedFields struct {
	Decision      model.Decision `json:"decision"`
	Reason        string         `json:"reason"`
	TraceID       string         `json:"trace_id"`
	ValidatorName string         `json:"validator_name"`
}

// Signer holds the process-wide signing key, loaded once at startup and
// never reassigned. Safe for concurrent use.
type Signer struct {
	secret     []byte
	keyVersion string
}

// New creates a Signer. An empty secret is a fatal configuration error:
// the gate must not start without keying material.
func New(secret, keyVersion string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signer: signature secret is empty")
	}
	return &Signer{secret: []byte(secret), keyVersion: keyVersion}, nil
}

// KeyVersion identifies the key the signer is currently using. Rotation is
// operator-driven (issue new secret, restart); the version is stamped on
// verdicts so auditors know which key to verify against.
func (s *Signer) KeyVersion() string {
	return s.keyVersion
}

// Sign computes the hex-encoded MAC for a verdict.
func (s *Signer) Sign(v model.Verdict) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("signer: no secret loaded")
	}
	payload, err := canonicalPayload(v)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the MAC from the verdict's signed fields and compares
// it against the carried signature in constant time. A verdict with an
// empty signature never verifies.
func (s *Signer) Verify(v model.Verdict) bool {
	if v.Signature == "" {
		return false
	}
	expected, err := s.Sign(v)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(v.Signature)) == 1
}

func canonicalPayload(v model.Verdict) ([]byte, error) {
	raw, err := json.Marshal(signedFields{
		Decision:      v.Decision,
		Reason:        v.Reason,
		TraceID:       v.TraceID,
		ValidatorName: "gate",
	})
	if err != nil {
		return nil, fmt.Errorf("signer: marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalize payload: %w", err)
	}
	return canonical, nil
}
