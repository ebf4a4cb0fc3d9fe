package trust

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/ockamlog"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/securechannel"
	"github.com/ockam/ockam/pkg/wireformat"
)

// presentMessage is what a peer sends the credentials-server worker to
// present a credential about itself.
type presentMessage struct {
	Credential *identity.Credential `cbor:"1,keyasint"`
}

// presentResponse optionally carries this server's own credential back
// ("mutual presentation"), or a caller-facing error string.
type presentResponse struct {
	Credential *identity.Credential `cbor:"1,keyasint,omitempty"`
	Error      string               `cbor:"2,keyasint,omitempty"`
}

// ServerConfig configures a credentials-server worker.
type ServerConfig struct {
	Verifier   securechannel.CredentialVerifier
	Attributes repository.IdentityAttributesRepository
	NodeName   string

	// MutualCredential, if set, is sent back to every peer that
	// successfully presents a credential, so both sides end the
	// exchange holding each other's attributes.
	MutualCredential *identity.Credential

	Clock func() time.Time
}

func (c *ServerConfig) clock() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// ServerWorker is the credentials-server worker: it accepts
// a presented credential, verifies it chains to a trusted authority,
// stores the attested attributes, and — if MutualCredential is
// configured — presents its own credential back.
type ServerWorker struct {
	node.NoopLifecycle
	cfg  ServerConfig
	ctrl *node.Context
	log  zerolog.Logger
}

// NewServerWorker returns a ready ServerWorker.
func NewServerWorker(cfg ServerConfig) *ServerWorker {
	return &ServerWorker{cfg: cfg, log: ockamlog.WithComponent("credentials_server")}
}

func (w *ServerWorker) Initialize(_ context.Context, ctrl *node.Context) error {
	w.ctrl = ctrl
	return nil
}

func (w *ServerWorker) HandleMessage(ctx context.Context, msg node.LocalMessage) error {
	peer, ok := msg.Identity()
	if !ok {
		w.log.Warn().Msg("dropping presented credential with no authenticated peer identity")
		return nil
	}

	_, replyRoute, ok := msg.Return.Next()
	if !ok || len(replyRoute) == 0 {
		return nil
	}

	var present presentMessage
	if err := wireformat.Unmarshal(msg.Payload, &present); err != nil {
		return fmt.Errorf("trust: decoding presented credential: %w", err)
	}
	if present.Credential == nil {
		return w.reply(ctx, replyRoute, "missing credential")
	}

	attrs, err := w.cfg.Verifier.Verify(ctx, present.Credential, peer, w.cfg.clock())
	if err != nil {
		w.log.Warn().Err(err).Stringer("peer", peer).Msg("rejecting presented credential")
		return w.reply(ctx, replyRoute, err.Error())
	}

	if w.cfg.Attributes != nil {
		entry := &repository.AttributesEntry{
			Attributes: attrs,
			AddedAt:    w.cfg.clock(),
			AttestedBy: peer,
		}
		if err := w.cfg.Attributes.Put(ctx, w.cfg.NodeName, peer, entry); err != nil {
			return fmt.Errorf("trust: storing attributes for %s: %w", peer, err)
		}
	}

	w.log.Info().Stringer("peer", peer).Msg("accepted presented credential")
	return w.reply(ctx, replyRoute, "")
}

func (w *ServerWorker) reply(ctx context.Context, route node.Route, errMsg string) error {
	resp := presentResponse{Error: errMsg}
	if errMsg == "" {
		resp.Credential = w.cfg.MutualCredential
	}
	encoded, err := wireformat.Marshal(resp)
	if err != nil {
		return fmt.Errorf("trust: encoding present response: %w", err)
	}
	return w.ctrl.Send(ctx, node.LocalMessage{Payload: encoded, Onward: route})
}
