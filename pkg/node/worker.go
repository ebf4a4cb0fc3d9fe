package node

import (
	"context"
	"fmt"

	"github.com/ockam/ockam/pkg/ockamerror"
)

// Worker handles one message at a time from its own mailbox. The
// substrate never delivers two messages concurrently to the same
// worker — handle_message can hold onto state across calls without a
// lock of its own.
type Worker interface {
	// Initialize runs once, after the worker's addresses are live in
	// the router but before start_worker returns to its caller.
	// Optional: a Worker that doesn't need setup can embed
	// NoopLifecycle.
	Initialize(ctx context.Context, ctrl *Context) error

	// HandleMessage processes one routed message. Returning an error
	// only logs; it does not stop the worker (a single bad message
	// must not take down a long-lived mailbox).
	HandleMessage(ctx context.Context, msg LocalMessage) error

	// Shutdown runs once, during stop_worker, before the worker's
	// addresses are unregistered.
	Shutdown(ctx context.Context) error
}

// Processor is scheduled as an owned background task rather than
// driven by mailbox delivery: the substrate calls Process in a loop
// until it returns false, used for long-lived pumps like transport
// receivers.
type Processor interface {
	Initialize(ctx context.Context, ctrl *Context) error
	Process(ctx context.Context) bool
	Shutdown(ctx context.Context) error
}

// NoopLifecycle provides no-op Initialize/Shutdown for workers that
// only need HandleMessage, so they don't have to write empty stubs.
type NoopLifecycle struct{}

func (NoopLifecycle) Initialize(context.Context, *Context) error { return nil }
func (NoopLifecycle) Shutdown(context.Context) error             { return nil }

// Context is the handle a worker or processor receives at Initialize
// time: a way to send messages out through the node it's running on
// and to discover its own addresses, following the pattern of handing
// background components a back-reference to their owner rather than
// threading every dependency through call arguments.
type Context struct {
	node      *Node
	addresses AddressSet
	inbox     chan LocalMessage
	mailbox   *Mailbox
}

// Addresses returns the set this worker or processor was started with.
func (c *Context) Addresses() AddressSet { return c.addresses }

// Send checks this worker's own outgoing access control against msg,
// from the perspective of the first address in its set, and only then
// forwards through the owning node's router. A denial is reported to
// the caller (unlike an incoming-AC denial, which the router/mailbox
// drop silently) since the sender is the party in a position to act on
// it — there's no peer here to hide the distinction from.
func (c *Context) Send(ctx context.Context, msg LocalMessage) error {
	if c.mailbox != nil && !c.mailbox.CheckOutgoing(ctx, msg) {
		return fmt.Errorf("node: %w: outgoing message from %q", ockamerror.ErrAccessDenied, c.mailbox.Address())
	}
	return c.node.router.Route(ctx, msg)
}

// Receive blocks until a message arrives at one of this worker's own
// addresses or ctx is done. Processors pull from their mailbox
// explicitly this way inside Process, since — unlike a Worker — a
// Processor is not driven by an automatic dispatch loop.
func (c *Context) Receive(ctx context.Context) (LocalMessage, bool) {
	select {
	case msg := <-c.inbox:
		return msg, true
	case <-ctx.Done():
		return LocalMessage{}, false
	}
}

// Node returns the owning node, for workers that need broader access
// (e.g. to start child workers of their own).
func (c *Context) Node() *Node { return c.node }
