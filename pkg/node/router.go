package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/ockamlog"
)

// Router maintains the Address → MailboxSender table every node keeps:
// a mutex-guarded subscriber map, except the router's "subscribers"
// are addressed mailboxes reached by unicast rather than a fan-out
// broadcast set.
type Router struct {
	mu        sync.RWMutex
	mailboxes map[Address]MailboxSender
	log       zerolog.Logger
}

// NewRouter creates an empty address table. Unlike Broker, the router
// has no separate Start/Stop: Route resolves and forwards synchronously
// against the table rather than through an internal dispatch channel,
// since a node has no equivalent of a broadcast fan-out to batch.
func NewRouter() *Router {
	return &Router{
		mailboxes: make(map[Address]MailboxSender),
		log:       ockamlog.WithComponent("node.router"),
	}
}

// Register adds addr → sender to the table. StartWorker calls this for
// every address in a worker's AddressSet before returning.
func (r *Router) Register(addr Address, sender MailboxSender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mailboxes[addr]; exists {
		return fmt.Errorf("node: address %q already registered", addr)
	}
	r.mailboxes[addr] = sender
	return nil
}

// Unregister removes addr from the table. stop_worker calls this for
// every address in a worker's AddressSet.
func (r *Router) Unregister(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mailboxes, addr)
}

// Lookup returns the sender registered for addr, if any.
func (r *Router) Lookup(addr Address) (MailboxSender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.mailboxes[addr]
	return sender, ok
}

// Route pops the head of msg's onward route, consults the address
// table, and forwards to the named mailbox. The popped address is
// pushed to the front of the return route first, so the message a
// worker receives already carries a return path back through this hop
//. Route returns ockamerror.ErrUnknownRoute if the
// destination isn't registered.
func (r *Router) Route(ctx context.Context, msg LocalMessage) error {
	dst, rest, ok := msg.Onward.Next()
	if !ok {
		return fmt.Errorf("node: %w: route is empty", ockamerror.ErrUnknownRoute)
	}

	sender, ok := r.Lookup(dst)
	if !ok {
		return fmt.Errorf("node: %w: no mailbox registered for %q", ockamerror.ErrUnknownRoute, dst)
	}

	forwarded := LocalMessage{
		Payload:   msg.Payload,
		Onward:    rest,
		Return:    msg.Return.Prepend(dst),
		LocalInfo: msg.LocalInfo,
	}

	if !sender.Send(ctx, forwarded) {
		r.log.Trace().Str("destination", string(dst)).Msg("message dropped (access control or full mailbox)")
		return nil
	}
	return nil
}
