package node

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ockam/ockam/pkg/ockamlog"
)

// MailboxCapacity is the buffered channel depth every mailbox is
// created with: smaller than a fan-out broadcast buffer would use,
// since a mailbox backs a single worker rather than many subscribers,
// but comfortably above the floor.
const MailboxCapacity = 32

// unicastSendTimeout bounds how long a unicast send blocks against a
// full mailbox before giving up: a "drop if the receiver buffer is
// full" behavior with a grace window, since unicast delivery (unlike
// broadcast) has exactly one recipient and is worth a brief wait.
const unicastSendTimeout = 2 * time.Second

// MailboxSender is the narrow, write-only face of a mailbox the router
// holds in its address table. Workers never see other workers'
// mailboxes directly — only the router forwards through this
// interface.
type MailboxSender interface {
	// Send runs the mailbox's incoming AC against msg and enqueues it.
	// Send blocks up to unicastSendTimeout if the
	// mailbox is full, then reports ok=false.
	Send(ctx context.Context, msg LocalMessage) (ok bool)
	Address() Address
}

// Mailbox is a single addressed inbox. It is not shared between
// workers: the substrate guarantees at most one goroutine ever reads
// from ch, so a worker's handle_message is effectively single-threaded
// with respect to its own mailbox.
type Mailbox struct {
	addr       Address
	ch         chan LocalMessage
	incomingAC AccessControl
	outgoingAC AccessControl
	log        zerolog.Logger
}

// NewMailbox creates a mailbox bound to addr with its own private
// queue. Both access controls default to DenyAll;
// callers override via SetIncomingAccessControl/SetOutgoingAccessControl
// before the mailbox is registered with a router.
func NewMailbox(addr Address) *Mailbox {
	return newMailbox(addr, make(chan LocalMessage, MailboxCapacity))
}

// newMailbox binds addr to an existing queue. A worker started with
// more than one address shares a single queue across all of its
// mailboxes (see start_worker in node.go) so that, regardless of which
// address a message arrives on, the substrate still delivers at most
// one message at a time to that worker.
func newMailbox(addr Address, ch chan LocalMessage) *Mailbox {
	return &Mailbox{
		addr:       addr,
		ch:         ch,
		incomingAC: DenyAll,
		outgoingAC: DenyAll,
		log:        ockamlog.WithComponent("node.mailbox").With().Str("address", string(addr)).Logger(),
	}
}

func (m *Mailbox) Address() Address { return m.addr }

// SetIncomingAccessControl replaces the predicate that decides whether
// this mailbox accepts an inbound message.
func (m *Mailbox) SetIncomingAccessControl(ac AccessControl) { m.incomingAC = ac }

// SetOutgoingAccessControl replaces the predicate that decides whether
// a message leaving this worker is permitted to go out.
func (m *Mailbox) SetOutgoingAccessControl(ac AccessControl) { m.outgoingAC = ac }

// Send is called by the router once it has resolved the destination.
// It checks only this mailbox's incoming AC (its willingness to
// receive); the source's outgoing AC is checked earlier, by the sending
// worker through CheckOutgoing (see Context.Send). A denial is a
// silent drop logged at trace level only, never
// surfaced to the sender — this prevents a peer from distinguishing
// "wrong address" from "denied" by access control.
func (m *Mailbox) Send(ctx context.Context, msg LocalMessage) bool {
	if !m.incomingAC.IsAuthorized(ctx, msg) {
		m.log.Trace().Msg("incoming access control denied message")
		return false
	}

	timer := time.NewTimer(unicastSendTimeout)
	defer timer.Stop()

	select {
	case m.ch <- msg:
		return true
	case <-timer.C:
		m.log.Trace().Msg("mailbox full, send timed out")
		return false
	case <-ctx.Done():
		return false
	}
}

// CheckOutgoing runs this mailbox's outgoing AC against a message this
// worker is about to send out. Workers call this themselves before
// handing a message to the router.
func (m *Mailbox) CheckOutgoing(ctx context.Context, msg LocalMessage) bool {
	if !m.outgoingAC.IsAuthorized(ctx, msg) {
		m.log.Trace().Msg("outgoing access control denied message")
		return false
	}
	return true
}

// Receive blocks until a message arrives or ctx is done.
func (m *Mailbox) Receive(ctx context.Context) (LocalMessage, bool) {
	select {
	case msg := <-m.ch:
		return msg, true
	case <-ctx.Done():
		return LocalMessage{}, false
	}
}

