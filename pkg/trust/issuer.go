package trust

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/ockamlog"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// EnrolledAttributes resolves a peer identifier's pre-enrolled
// attribute bundle for issuer configurations that enroll members ahead
// of time, rather than via enrollment-token redemption.
type EnrolledAttributes interface {
	Lookup(ctx context.Context, subject identity.Identifier) (map[string][]byte, bool)
}

// StaticEnrolledAttributes is a fixed map of pre-enrolled subjects,
// suited to small deployments or tests where every member's attribute
// bundle is known ahead of time.
type StaticEnrolledAttributes map[identity.Identifier]map[string][]byte

// Lookup satisfies EnrolledAttributes.
func (s StaticEnrolledAttributes) Lookup(_ context.Context, subject identity.Identifier) (map[string][]byte, bool) {
	attrs, ok := s[subject]
	return attrs, ok
}

// issuerRequest is what a member sends the credentials-issuer worker:
// either nothing (rely on pre-enrolled attributes) or a token to redeem.
type issuerRequest struct {
	Token string `cbor:"1,keyasint,omitempty"`
}

// issuerResponse carries either a freshly issued credential or an
// error message for the caller: the text of whatever error stopped
// issuance.
type issuerResponse struct {
	Credential *identity.Credential `cbor:"1,keyasint,omitempty"`
	Error      string               `cbor:"2,keyasint,omitempty"`
}

// IssuerConfig configures a credentials-issuer worker.
type IssuerConfig struct {
	Vault                  vault.Vault
	IssuerIdentifier       identity.Identifier
	IssuerPurposeKeyHandle vault.Handle

	// CredentialTTL defaults to one hour.
	CredentialTTL time.Duration
	// RateLimit and RateBurst default to 10/min per peer.
	RateLimit rate.Limit
	RateBurst int

	Enrolled EnrolledAttributes      // optional
	Tokens   *EnrollmentTokenManager // optional

	Clock func() time.Time
}

func (c *IssuerConfig) clock() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// IssuerWorker is the credentials-issuer worker: it accepts
// requests stamped with a secure-channel peer identity, resolves the
// caller's attribute bundle (pre-enrolled, or via enrollment-token
// redemption), issues a signed credential, and returns it. A request
// with no IdentitySecureChannelLocalInfo stamp — one that never crossed
// an authenticated channel — is silently dropped.
type IssuerWorker struct {
	node.NoopLifecycle
	cfg  IssuerConfig
	ctrl *node.Context

	mu       sync.Mutex
	limiters map[identity.Identifier]*rate.Limiter

	log zerolog.Logger
}

// NewIssuerWorker applies IssuerConfig's defaults and returns a ready
// IssuerWorker.
func NewIssuerWorker(cfg IssuerConfig) *IssuerWorker {
	if cfg.CredentialTTL <= 0 {
		cfg.CredentialTTL = time.Hour
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Limit(10.0 / 60.0)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	return &IssuerWorker{
		cfg:      cfg,
		limiters: make(map[identity.Identifier]*rate.Limiter),
		log:      ockamlog.WithComponent("credentials_issuer"),
	}
}

func (w *IssuerWorker) Initialize(_ context.Context, ctrl *node.Context) error {
	w.ctrl = ctrl
	return nil
}

func (w *IssuerWorker) limiterFor(id identity.Identifier) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.limiters[id]
	if !ok {
		l = rate.NewLimiter(w.cfg.RateLimit, w.cfg.RateBurst)
		w.limiters[id] = l
	}
	return l
}

func (w *IssuerWorker) HandleMessage(ctx context.Context, msg node.LocalMessage) error {
	peer, ok := msg.Identity()
	if !ok {
		w.log.Warn().Msg("dropping credential request with no authenticated peer identity")
		return nil
	}

	// As at every worker that is the terminal destination of a route,
	// the router has already prepended this address to Return; the
	// real path back is the remainder.
	_, replyRoute, ok := msg.Return.Next()
	if !ok || len(replyRoute) == 0 {
		return nil
	}

	if !w.limiterFor(peer).Allow() {
		return w.reply(ctx, replyRoute, nil, fmt.Sprintf("rate limit exceeded for %s", peer))
	}

	var req issuerRequest
	if err := wireformat.Unmarshal(msg.Payload, &req); err != nil {
		return fmt.Errorf("trust: decoding credential request: %w", err)
	}

	attrs, found, err := w.resolveAttributes(ctx, peer, req.Token)
	if err != nil {
		w.log.Warn().Err(err).Stringer("subject", peer).Msg("rejecting credential request")
		return w.reply(ctx, replyRoute, nil, err.Error())
	}
	if !found {
		return w.reply(ctx, replyRoute, nil, fmt.Sprintf("no enrolled attributes for %s", peer))
	}

	cred, err := identity.IssueCredential(w.cfg.Vault, w.cfg.IssuerPurposeKeyHandle, peer, attrs, w.cfg.CredentialTTL)
	if err != nil {
		return w.reply(ctx, replyRoute, nil, err.Error())
	}

	w.log.Info().Stringer("subject", peer).Msg("issued credential")
	return w.reply(ctx, replyRoute, cred, "")
}

func (w *IssuerWorker) resolveAttributes(ctx context.Context, peer identity.Identifier, token string) (map[string][]byte, bool, error) {
	if token != "" {
		if w.cfg.Tokens == nil {
			return nil, false, fmt.Errorf("trust: enrollment tokens not configured on this issuer")
		}
		attrs, err := w.cfg.Tokens.RedeemToken(token)
		if err != nil {
			return nil, false, err
		}
		return attrs, true, nil
	}
	if w.cfg.Enrolled == nil {
		return nil, false, nil
	}
	attrs, ok := w.cfg.Enrolled.Lookup(ctx, peer)
	return attrs, ok, nil
}

func (w *IssuerWorker) reply(ctx context.Context, route node.Route, cred *identity.Credential, errMsg string) error {
	encoded, err := wireformat.Marshal(issuerResponse{Credential: cred, Error: errMsg})
	if err != nil {
		return fmt.Errorf("trust: encoding credential response: %w", err)
	}
	return w.ctrl.Send(ctx, node.LocalMessage{Payload: encoded, Onward: route})
}
