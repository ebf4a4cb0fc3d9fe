package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ockam/ockam/pkg/abac"
	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/metrics"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/ockamlog"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/repository/memory"
	"github.com/ockam/ockam/pkg/securechannel"
	"github.com/ockam/ockam/pkg/trust"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

var (
	demoServe          bool
	demoMetricsAddr    string
	demoIdentityTTL    time.Duration
	demoCredentialTTL  time.Duration
	demoPolicyAttr     string
	demoPolicyValue    string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a self-contained enrollment and authorization walkthrough",
	Long: `demo wires a single node with two identities, a Noise-XX secure
channel between them, a credentials issuer and server, and an ABAC
policy check, all in one process. It is meant to be read alongside its
own output, not deployed: every address, identity, and credential here
is generated fresh and discarded when the process exits.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().BoolVar(&demoServe, "serve", false, "after the walkthrough, keep the node running and serve /metrics, /health, /ready, /live until interrupted")
	demoCmd.Flags().StringVar(&demoMetricsAddr, "metrics-addr", ":9090", "address to serve metrics and health endpoints on, when --serve is set")
	demoCmd.Flags().DurationVar(&demoIdentityTTL, "identity-ttl", 24*time.Hour, "validity period of each identity's signing key")
	demoCmd.Flags().DurationVar(&demoCredentialTTL, "credential-ttl", time.Hour, "validity period of the credential the issuer mints")
	demoCmd.Flags().StringVar(&demoPolicyAttr, "policy-attribute", "role", "attribute name the demo's ABAC policy checks")
	demoCmd.Flags().StringVar(&demoPolicyValue, "policy-value", "operator", "attribute value the member is enrolled with and the policy requires")
	rootCmd.AddCommand(demoCmd)
}

// policyAdapter satisfies abac.PolicySource against a
// repository.PoliciesRepository, translating its error return into
// abac's (value, ok) shape.
type policyAdapter struct {
	ctx  context.Context
	repo repository.PoliciesRepository
}

func (p policyAdapter) Get(resource, action string) (*abac.Expression, bool) {
	expr, err := p.repo.Get(p.ctx, resource, action)
	if err != nil || expr == nil {
		return nil, false
	}
	return expr, true
}

// attributeAdapter satisfies abac.AttributeSource against an
// IdentityAttributesRepository scoped to one verifying node, parsing
// the subject string back into an identity.Identifier.
type attributeAdapter struct {
	ctx      context.Context
	repo     repository.IdentityAttributesRepository
	nodeName string
}

func (a attributeAdapter) Attributes(subject string) (map[string][]byte, bool) {
	id, err := identity.ParseIdentifier(subject)
	if err != nil {
		return nil, false
	}
	entry, err := a.repo.Get(a.ctx, a.nodeName, id)
	if err != nil || entry == nil {
		return nil, false
	}
	return entry.Attributes, true
}

// issuerRequest and presentMessage mirror the unexported wire shapes
// pkg/trust's worker and server speak, the same way a separate client
// binary has to: by agreeing on the CBOR field tags rather than
// sharing the unexported type.
type issuerRequest struct {
	Token string `cbor:"1,keyasint,omitempty"`
}

type issuerResponse struct {
	Credential *identity.Credential `cbor:"1,keyasint,omitempty"`
	Error      string               `cbor:"2,keyasint,omitempty"`
}

type presentMessage struct {
	Credential *identity.Credential `cbor:"1,keyasint"`
}

type presentResponse struct {
	Credential *identity.Credential `cbor:"1,keyasint,omitempty"`
	Error      string               `cbor:"2,keyasint,omitempty"`
}

// replyCollector is a worker that buffers every message it receives, so
// demo's synchronous steps can request something over a channel and
// then block on the answer.
type replyCollector struct {
	node.NoopLifecycle
	received chan node.LocalMessage
}

func (w *replyCollector) HandleMessage(_ context.Context, msg node.LocalMessage) error {
	w.received <- msg
	return nil
}

func startCollector(ctx context.Context, nd *node.Node, addr node.Address) (chan node.LocalMessage, error) {
	received := make(chan node.LocalMessage, 1)
	w := &replyCollector{received: received}
	err := nd.StartWorker(ctx, node.AddressSet{addr}, w, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	})
	return received, err
}

func awaitReply(ch chan node.LocalMessage, timeout time.Duration) (node.LocalMessage, error) {
	select {
	case msg := <-ch:
		return msg, nil
	case <-time.After(timeout):
		return node.LocalMessage{}, fmt.Errorf("timed out waiting for a reply")
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := ockamlog.WithComponent("demo")
	v := vault.New()

	fmt.Println("1. creating the authority and member identities")
	authority, authorityKeyHandle, err := identity.CreateIdentity(v, demoIdentityTTL)
	if err != nil {
		return fmt.Errorf("creating authority identity: %w", err)
	}
	authorityChannelAttest, authorityChannelKeyHandle, err := identity.CreatePurposeKey(
		v, authority.Identifier(), authorityKeyHandle, identity.PurposeSecureChannel, demoIdentityTTL)
	if err != nil {
		return fmt.Errorf("creating authority secure-channel purpose key: %w", err)
	}
	authorityCredAttest, authorityCredKeyHandle, err := identity.CreatePurposeKey(
		v, authority.Identifier(), authorityKeyHandle, identity.PurposeCredentials, demoIdentityTTL)
	if err != nil {
		return fmt.Errorf("creating authority credentials purpose key: %w", err)
	}

	member, memberKeyHandle, err := identity.CreateIdentity(v, demoIdentityTTL)
	if err != nil {
		return fmt.Errorf("creating member identity: %w", err)
	}
	memberChannelAttest, memberChannelKeyHandle, err := identity.CreatePurposeKey(
		v, member.Identifier(), memberKeyHandle, identity.PurposeSecureChannel, demoIdentityTTL)
	if err != nil {
		return fmt.Errorf("creating member secure-channel purpose key: %w", err)
	}
	fmt.Printf("   authority: %s\n", authority.Identifier())
	fmt.Printf("   member:    %s\n", member.Identifier())

	fmt.Println("2. rotating the authority's signing key, to show a change history growing under key rotation")
	rotated, newHandle, err := identity.RotateKey(v, authority, authorityKeyHandle, false, demoIdentityTTL)
	if err != nil {
		return fmt.Errorf("rotating authority key: %w", err)
	}
	authority, authorityKeyHandle = rotated, newHandle
	if _, err := authority.ChangeHistory().Verify(v); err != nil {
		return fmt.Errorf("change history failed to re-verify after rotation: %w", err)
	}
	fmt.Printf("   change history now has %d entries and still resolves to %s\n",
		len(authority.ChangeHistory().Changes), authority.Identifier())

	histories := memory.NewChangeHistoryRepository()
	purposeKeys := memory.NewPurposeKeysRepository()
	attrs := memory.NewIdentityAttributesRepository()
	credentials := memory.NewCredentialsRepository()
	policies := memory.NewPoliciesRepository()

	if err := histories.Put(ctx, authority.Identifier(), authority.ChangeHistory()); err != nil {
		return fmt.Errorf("storing authority change history: %w", err)
	}
	if err := histories.Put(ctx, member.Identifier(), member.ChangeHistory()); err != nil {
		return fmt.Errorf("storing member change history: %w", err)
	}
	if err := purposeKeys.Put(ctx, authority.Identifier(), identity.PurposeCredentials, authorityCredAttest); err != nil {
		return fmt.Errorf("storing authority credentials purpose key: %w", err)
	}

	tc := trust.TrustContext{ID: "demo", Authorities: []identity.Identifier{authority.Identifier()}}
	verifier := trust.NewAuthorityVerifier(tc, v, histories, purposeKeys)

	nd := node.NewNode()
	collector := metrics.NewCollector(nd, v, 2*time.Second)
	collector.Start()
	defer collector.Stop()

	fmt.Println("3. opening a secure channel from the member to the authority")
	listenAddr := node.GenerateAddress("authority-channel")
	responderCfg := securechannel.Config{
		Vault:                      v,
		LocalChangeHistory:         authority.ChangeHistory(),
		LocalIdentifier:            authority.Identifier(),
		LocalPurposeKeyAttestation: authorityChannelAttest,
		LocalPurposeKeyHandle:      authorityChannelKeyHandle,
		TrustPolicy:                securechannel.TrustIdentifier(member.Identifier()),
		AttributesStore:            attrs,
		NodeName:                   "authority",
	}
	if err := securechannel.CreateSecureChannelListener(ctx, nd, listenAddr, responderCfg, "channel"); err != nil {
		return fmt.Errorf("starting secure-channel listener: %w", err)
	}

	initiatorCfg := securechannel.Config{
		Vault:                      v,
		LocalChangeHistory:         member.ChangeHistory(),
		LocalIdentifier:            member.Identifier(),
		LocalPurposeKeyAttestation: memberChannelAttest,
		LocalPurposeKeyHandle:      memberChannelKeyHandle,
		TrustPolicy:                securechannel.TrustIdentifier(authority.Identifier()),
		AttributesStore:            attrs,
		NodeName:                   "member",
	}
	metrics.HandshakesStarted.WithLabelValues("initiator").Inc()
	timer := metrics.NewTimer()
	addrs, err := securechannel.CreateSecureChannel(ctx, nd, node.Route{listenAddr}, initiatorCfg, "channel")
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("initiator", "handshake").Inc()
		return fmt.Errorf("opening secure channel: %w", err)
	}
	timer.ObserveDuration(metrics.HandshakeDuration)
	metrics.HandshakesCompleted.WithLabelValues("initiator").Inc()
	metrics.ActiveSecureChannels.Inc()
	fmt.Printf("   channel open, encryptor at %s\n", addrs.Encryptor)

	fmt.Println("4. member requests a credential from the authority's issuer, over the channel")
	issuerAddr := node.GenerateAddress("issuer")
	issuerCfg := trust.IssuerConfig{
		Vault:                  v,
		IssuerIdentifier:       authority.Identifier(),
		IssuerPurposeKeyHandle: authorityCredKeyHandle,
		Enrolled:               trust.StaticEnrolledAttributes{member.Identifier(): {demoPolicyAttr: []byte(demoPolicyValue)}},
		CredentialTTL:          demoCredentialTTL,
	}
	if err := nd.StartWorker(ctx, node.AddressSet{issuerAddr}, trust.NewIssuerWorker(issuerCfg), node.StartOptions{
		IncomingAccessControl: node.AllowAll,
		OutgoingAccessControl: node.AllowAll,
	}); err != nil {
		return fmt.Errorf("starting credentials issuer: %w", err)
	}

	issuerReplyAddr := node.GenerateAddress("issuer-reply")
	issuerReplies, err := startCollector(ctx, nd, issuerReplyAddr)
	if err != nil {
		return fmt.Errorf("starting issuer reply collector: %w", err)
	}
	// Admits issuerReplyAddr to send plaintext through this channel's
	// encryptor: the issuer's reply re-enters at addrs.Encryptor
	// addressed onward to issuerReplyAddr, so that address must be a
	// registered consumer for the encryptor to accept it.
	nd.FlowControl().AddConsumer(addrs.FlowControlID, issuerReplyAddr)

	reqPayload, err := wireformat.Marshal(issuerRequest{})
	if err != nil {
		return fmt.Errorf("encoding credential request: %w", err)
	}
	// The return route only needs to name issuerReplyAddr: the router
	// prepends addrs.Encryptor as it forwards this hop, so the issuer's
	// reply retraces the same tunnel back out, decrypts on the
	// authority side, and lands on issuerReplyAddr without any of this
	// needing to know it shares a process with the authority.
	if err := nd.Router().Route(ctx, node.LocalMessage{
		Payload: reqPayload,
		Onward:  node.Route{addrs.Encryptor, issuerAddr},
		Return:  node.Route{issuerReplyAddr},
	}); err != nil {
		return fmt.Errorf("sending credential request: %w", err)
	}

	msg, err := awaitReply(issuerReplies, 2*time.Second)
	// issuerReplyAddr's one round trip is done; revoke its standing to
	// send plaintext through the channel rather than leaving it admitted
	// for the lifetime of the node.
	nd.FlowControl().RemoveConsumer(addrs.FlowControlID, issuerReplyAddr)
	if err != nil {
		return fmt.Errorf("waiting for credential: %w", err)
	}
	var issResp issuerResponse
	if err := wireformat.Unmarshal(msg.Payload, &issResp); err != nil {
		return fmt.Errorf("decoding credential response: %w", err)
	}
	if issResp.Error != "" {
		metrics.CredentialsDeniedTotal.WithLabelValues(issResp.Error).Inc()
		return fmt.Errorf("issuer denied the request: %s", issResp.Error)
	}
	metrics.CredentialsIssuedTotal.Inc()
	cred := issResp.Credential
	if err := credentials.Put(ctx, member.Identifier(), cred); err != nil {
		return fmt.Errorf("caching issued credential: %w", err)
	}
	fmt.Printf("   issued credential for %s, attributes %v\n", cred.Subject(), cred.Attributes())

	fmt.Println("5. member presents the credential to the authority's credentials server")
	serverAddr := node.GenerateAddress("credentials-server")
	serverCfg := trust.ServerConfig{Verifier: verifier, Attributes: attrs, NodeName: "authority"}
	if err := nd.StartWorker(ctx, node.AddressSet{serverAddr}, trust.NewServerWorker(serverCfg), node.StartOptions{
		IncomingAccessControl: node.AllowAll,
		OutgoingAccessControl: node.AllowAll,
	}); err != nil {
		return fmt.Errorf("starting credentials server: %w", err)
	}

	serverReplyAddr := node.GenerateAddress("server-reply")
	serverReplies, err := startCollector(ctx, nd, serverReplyAddr)
	if err != nil {
		return fmt.Errorf("starting server reply collector: %w", err)
	}
	nd.FlowControl().AddConsumer(addrs.FlowControlID, serverReplyAddr)

	presentPayload, err := wireformat.Marshal(presentMessage{Credential: cred})
	if err != nil {
		return fmt.Errorf("encoding presented credential: %w", err)
	}
	if err := nd.Router().Route(ctx, node.LocalMessage{
		Payload: presentPayload,
		Onward:  node.Route{addrs.Encryptor, serverAddr},
		Return:  node.Route{serverReplyAddr},
	}); err != nil {
		return fmt.Errorf("presenting credential: %w", err)
	}

	msg, err = awaitReply(serverReplies, 2*time.Second)
	nd.FlowControl().RemoveConsumer(addrs.FlowControlID, serverReplyAddr)
	if err != nil {
		return fmt.Errorf("waiting for presentation result: %w", err)
	}
	var presResp presentResponse
	if err := wireformat.Unmarshal(msg.Payload, &presResp); err != nil {
		return fmt.Errorf("decoding presentation response: %w", err)
	}
	if presResp.Error != "" {
		metrics.CredentialsPresentedTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("server rejected the presented credential: %s", presResp.Error)
	}
	metrics.CredentialsPresentedTotal.WithLabelValues("accepted").Inc()
	fmt.Println("   credential accepted; attributes now recorded against the member's identifier")

	fmt.Println("6. checking an ABAC policy against the attributes just attested")
	if err := policies.Put(ctx, "secrets", "read",
		abac.Eq(abac.Ident(demoPolicyAttr), abac.Const(abac.StringValue(demoPolicyValue)))); err != nil {
		return fmt.Errorf("storing policy: %w", err)
	}
	allowed := abac.Authorize(
		policyAdapter{ctx: ctx, repo: policies},
		attributeAdapter{ctx: ctx, repo: attrs, nodeName: "authority"},
		member.Identifier().String(), "secrets", "read",
	)
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	metrics.AuthorizationsTotal.WithLabelValues(outcome).Inc()
	fmt.Printf("   member read access to \"secrets\": %s\n", outcome)
	if !allowed {
		return fmt.Errorf("expected the member to be authorized after presenting its credential")
	}

	log.Info().Msg("walkthrough complete")

	if !demoServe {
		return nd.Shutdown(ctx)
	}

	return serveUntilSignal(ctx, nd)
}

func serveUntilSignal(ctx context.Context, nd *node.Node) error {
	metrics.SetVersion("dev")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: demoMetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "metrics server:", err)
		}
	}()
	fmt.Printf("serving /metrics, /health, /ready, /live on %s; press ctrl-c to stop\n", demoMetricsAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nd.Shutdown(shutdownCtx)
}
