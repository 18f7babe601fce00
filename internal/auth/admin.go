// Package auth verifies signed, time-bounded admin command envelopes before
// privileged bulk operations act on them.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr-tron/base58"
)

// Verification outcomes. Each failure mode gets its own category so callers
// can distinguish retryable rejections (expired) from hard denials
// (forbidden).
var (
	ErrForbidden       = errors.New("forbidden")
	ErrBadSignature    = errors.New("bad signature")
	ErrExpired         = errors.New("expired")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// FreshnessWindow is the replay-protection window around the command's
// embedded timestamp.
const FreshnessWindow = 5 * time.Minute

// Envelope is a signed admin command as received on the wire. The signature
// is an ed25519 signature of the raw message bytes under the wallet's key.
type Envelope struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

// Command is the payload embedded in an envelope's message.
type Command struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	Reason    string `json:"reason,omitempty"`
}

// Authenticator checks admin command envelopes against the configured
// administrator wallet.
type Authenticator struct {
	adminWallet string
	window      time.Duration
	clock       clockwork.Clock
}

// New creates an authenticator for the given admin wallet. A nil clock uses
// the real clock.
func New(adminWallet string, clock clockwork.Clock) *Authenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authenticator{
		adminWallet: adminWallet,
		window:      FreshnessWindow,
		clock:       clock,
	}
}

// Verify checks that the envelope was signed by the configured admin wallet
// and that its embedded timestamp is fresh. On success it returns the parsed
// command; otherwise one of ErrForbidden, ErrBadSignature, ErrExpired, or
// ErrInvalidEnvelope.
func (a *Authenticator) Verify(env Envelope) (*Command, error) {
	if env.Wallet == "" || env.Signature == "" || env.Message == "" {
		return nil, fmt.Errorf("%w: wallet, signature, and message are required", ErrInvalidEnvelope)
	}
	if env.Wallet != a.adminWallet {
		return nil, fmt.Errorf("%w: wallet is not the configured administrator", ErrForbidden)
	}

	valid, err := verifyEd25519Signature(env.Wallet, env.Message, env.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !valid {
		return nil, fmt.Errorf("%w: signature does not match message", ErrBadSignature)
	}

	var cmd Command
	if err := json.Unmarshal([]byte(env.Message), &cmd); err != nil {
		return nil, fmt.Errorf("%w: message is not valid JSON: %v", ErrInvalidEnvelope, err)
	}
	if cmd.Timestamp == 0 {
		return nil, fmt.Errorf("%w: message has no timestamp", ErrInvalidEnvelope)
	}

	age := a.clock.Now().Sub(time.Unix(cmd.Timestamp, 0))
	if age > a.window || age < -a.window {
		return nil, fmt.Errorf("%w: command timestamp is %s outside the %s freshness window", ErrExpired, age.Round(time.Second), a.window)
	}

	return &cmd, nil
}

// verifyEd25519Signature verifies an ed25519 signature over the message
// under a base58-encoded Solana public key. Signatures arrive base64 encoded
// in any of the common variants.
func verifyEd25519Signature(publicKeyBase58, message, signatureBase64 string) (bool, error) {
	publicKeyBytes, err := base58.Decode(publicKeyBase58)
	if err != nil {
		return false, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(publicKeyBytes) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size: expected %d, got %d", ed25519.PublicKeySize, len(publicKeyBytes))
	}

	signatureBytes, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		signatureBytes, err = base64.URLEncoding.DecodeString(signatureBase64)
		if err != nil {
			signatureBytes, err = base64.RawStdEncoding.DecodeString(signatureBase64)
			if err != nil {
				return false, fmt.Errorf("failed to decode signature: %w", err)
			}
		}
	}
	if len(signatureBytes) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature size: expected %d, got %d", ed25519.SignatureSize, len(signatureBytes))
	}

	return ed25519.Verify(ed25519.PublicKey(publicKeyBytes), []byte(message), signatureBytes), nil
}
