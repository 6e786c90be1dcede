// Package set builds and signs Security Event Tokens for push delivery
// to a Shared Signals receiver.
package set

import (
	"crypto/rsa"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/franksrp-ld/ssf/internal/risk"
)

// Event-type URIs advertised in the discovery document. Transitions
// relayed from device polling are emitted as device risk changes.
const (
	DeviceRiskChangeEvent = "https://schemas.okta.com/secevent/okta/event-type/device-risk-change"
	UserRiskChangeEvent   = "https://schemas.okta.com/secevent/okta/event-type/user-risk-change"
)

// KeyLoadError reports unparseable or unreadable signing key material.
// The relay cannot run without a signing key, so this is fatal at boot.
type KeyLoadError struct {
	Path string
	Err  error
}

func (e *KeyLoadError) Error() string {
	return fmt.Sprintf("load signing key %s: %v", e.Path, e.Err)
}

func (e *KeyLoadError) Unwrap() error {
	return e.Err
}

type riskChangeEvent struct {
	EventTimestamp   int64       `json:"event_timestamp"`
	CurrentLevel     string      `json:"current_level"`
	PreviousLevel    string      `json:"previous_level"`
	InitiatingEntity string      `json:"initiating_entity"`
	ReasonAdmin      reasonAdmin `json:"reason_admin"`
	Subject          subject     `json:"subject"`
}

type reasonAdmin struct {
	En string `json:"en"`
}

type subject struct {
	User subjectUser `json:"user"`
}

type subjectUser struct {
	Format string `json:"format"`
	Email  string `json:"email"`
}

type setClaims struct {
	Events map[string]riskChangeEvent `json:"events"`
	jwt.RegisteredClaims
}

// Config fixes the signing identity at startup.
type Config struct {
	Issuer   string
	Audience string
	KeyFile  string
	KeyID    string
}

// Signer turns risk transitions into signed compact SETs. The private
// key is loaded once and is read-only afterwards.
type Signer struct {
	cfg Config

	loadOnce sync.Once
	key      *rsa.PrivateKey
	loadErr  error
}

func NewSigner(cfg Config) *Signer {
	return &Signer{cfg: cfg}
}

// Load forces the signing key to be read and parsed. main calls this at
// boot so a bad key fails the process instead of the first event.
func (s *Signer) Load() error {
	s.loadOnce.Do(func() {
		pem, err := os.ReadFile(s.cfg.KeyFile)
		if err != nil {
			s.loadErr = &KeyLoadError{Path: s.cfg.KeyFile, Err: err}
			return
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
		if err != nil {
			s.loadErr = &KeyLoadError{Path: s.cfg.KeyFile, Err: err}
			return
		}
		s.key = key
	})
	return s.loadErr
}

// Sign builds a device-risk-change SET for the transition and signs it.
// Every call produces a fresh jti so two tokens never collide in the
// receiver's replay detection.
func (s *Signer) Sign(t risk.Transition) (string, error) {
	if err := s.Load(); err != nil {
		return "", err
	}

	claims := setClaims{
		Events: map[string]riskChangeEvent{
			DeviceRiskChangeEvent: {
				EventTimestamp:   t.OccurredAt.Unix(),
				CurrentLevel:     t.Current.String(),
				PreviousLevel:    t.Previous.String(),
				InitiatingEntity: "system",
				ReasonAdmin:      reasonAdmin{En: t.Reason},
				Subject: subject{
					User: subjectUser{Format: "email", Email: t.Subject},
				},
			},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.cfg.Issuer,
			Audience: jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt: jwt.NewNumericDate(time.Now()),
			ID:       uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["typ"] = "secevent+jwt"
	token.Header["kid"] = s.cfg.KeyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign security event token: %w", err)
	}
	return signed, nil
}
