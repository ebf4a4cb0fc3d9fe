package trust

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ockam/ockam/pkg/ockamerror"
)

// EnrollmentToken lets a credentials-issuer worker bind a one-time
// redemption to a pre-decided attribute bundle, rather than requiring
// every enrollee to already have an attribute entry on the issuer side:
// a pre-enrolled attribute set or an enrollment-token redemption.
type EnrollmentToken struct {
	Token      string
	Attributes map[string][]byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// EnrollmentTokenManager issues and redeems enrollment tokens, adapted
// from a cluster-join TokenManager shape (manager/token.go) and
// re-scoped from a role string to an attribute bundle. A token is
// consumed on first successful redemption: RedeemToken both verifies
// and deletes it, since an enrollment token is meant to authorize
// exactly one credential issuance.
type EnrollmentTokenManager struct {
	tokens map[string]*EnrollmentToken
	mu     sync.RWMutex
	clock  func() time.Time
}

// NewEnrollmentTokenManager returns an empty manager. clock defaults to
// time.Now if nil, letting tests control expiry deterministically.
func NewEnrollmentTokenManager(clock func() time.Time) *EnrollmentTokenManager {
	if clock == nil {
		clock = time.Now
	}
	return &EnrollmentTokenManager{
		tokens: make(map[string]*EnrollmentToken),
		clock:  clock,
	}
}

// GenerateToken creates a new random token bound to attrs, valid for
// validFor.
func (m *EnrollmentTokenManager) GenerateToken(attrs map[string][]byte, validFor time.Duration) (*EnrollmentToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("trust: generating enrollment token: %w", err)
	}
	now := m.clock()
	et := &EnrollmentToken{
		Token:      hex.EncodeToString(raw),
		Attributes: attrs,
		CreatedAt:  now,
		ExpiresAt:  now.Add(validFor),
	}

	m.mu.Lock()
	m.tokens[et.Token] = et
	m.mu.Unlock()
	return et, nil
}

// RedeemToken validates token, deletes it, and returns the attribute
// bundle it was bound to. A second redemption of the same token, or one
// past its expiry, fails.
func (m *EnrollmentTokenManager) RedeemToken(token string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	et, ok := m.tokens[token]
	if !ok {
		return nil, fmt.Errorf("trust: %w: unknown enrollment token", ockamerror.ErrCredentialInvalid)
	}
	delete(m.tokens, token)

	if m.clock().After(et.ExpiresAt) {
		return nil, fmt.Errorf("trust: %w: enrollment token expired at %s", ockamerror.ErrCredentialExpired, et.ExpiresAt)
	}
	return et.Attributes, nil
}

// RevokeToken removes token without redeeming it.
func (m *EnrollmentTokenManager) RevokeToken(token string) {
	m.mu.Lock()
	delete(m.tokens, token)
	m.mu.Unlock()
}

// CleanupExpired removes every token past its expiry as of now.
func (m *EnrollmentTokenManager) CleanupExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, et := range m.tokens {
		if now.After(et.ExpiresAt) {
			delete(m.tokens, token)
		}
	}
}
