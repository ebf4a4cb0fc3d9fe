package trust

import (
	"context"
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/wireformat"
)

// defaultRetrieveTimeout bounds how long RemoteCredentialRetriever
// waits for an issuer to answer, the same bounded-round-trip pattern
// as every outbound client call (pkg/client.Client's
// context.WithTimeout(..., 10*time.Second) on every RPC).
const defaultRetrieveTimeout = 30 * time.Second

// RemoteCredentialRetriever asks a live credentials-issuer worker for a
// credential over an already-established secure channel, following the
// same start-temporary-worker-and-wait shape as
// securechannel.CreateSecureChannel. subject passed to Retrieve is
// informational only — the issuer always issues a credential about
// whichever peer identity its own decryptor stamped the request with,
// never a subject the requester merely claims to be.
type RemoteCredentialRetriever struct {
	Node        *node.Node
	IssuerRoute node.Route
	Token       string
	Timeout     time.Duration
}

type remoteCredentialResult struct {
	cred *identity.Credential
	err  error
}

// Retrieve satisfies CredentialRetriever.
func (r *RemoteCredentialRetriever) Retrieve(ctx context.Context, _ identity.Identifier) (*identity.Credential, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRetrieveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := wireformat.Marshal(issuerRequest{Token: r.Token})
	if err != nil {
		return nil, fmt.Errorf("trust: encoding credential request: %w", err)
	}

	replyAddr := node.GenerateAddress("credential_retriever")
	resultCh := make(chan remoteCredentialResult, 1)
	w := &remoteRetrieverWorker{resultCh: resultCh}
	if err := r.Node.StartWorker(ctx, node.AddressSet{replyAddr}, w, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}); err != nil {
		return nil, fmt.Errorf("trust: starting credential retriever reply worker: %w", err)
	}
	defer func() { _ = r.Node.StopWorker(context.Background(), replyAddr) }()

	if err := r.Node.Router().Route(ctx, node.LocalMessage{
		Payload: payload,
		Onward:  r.IssuerRoute,
		Return:  node.Route{replyAddr},
	}); err != nil {
		return nil, fmt.Errorf("trust: sending credential request: %w", err)
	}

	select {
	case res := <-resultCh:
		return res.cred, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// remoteRetrieverWorker is the temporary reply address a
// RemoteCredentialRetriever spins up for the duration of a single
// request.
type remoteRetrieverWorker struct {
	node.NoopLifecycle
	resultCh chan remoteCredentialResult
}

func (w *remoteRetrieverWorker) HandleMessage(_ context.Context, msg node.LocalMessage) error {
	var resp issuerResponse
	if err := wireformat.Unmarshal(msg.Payload, &resp); err != nil {
		w.resultCh <- remoteCredentialResult{err: fmt.Errorf("trust: decoding credential response: %w", err)}
		return nil
	}
	if resp.Error != "" {
		w.resultCh <- remoteCredentialResult{err: fmt.Errorf("trust: %w: %s", ockamerror.ErrCredentialInvalid, resp.Error)}
		return nil
	}
	w.resultCh <- remoteCredentialResult{cred: resp.Credential}
	return nil
}
