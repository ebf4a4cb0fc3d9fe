package node

import (
	"bytes"
	"context"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/repository"
)

// AccessControl decides whether a LocalMessage may pass a mailbox
// boundary. Every mailbox consults two of these: an incoming AC (is
// this destination willing to receive it) and an outgoing AC (is this
// source permitted to send it). Both must approve before a message is
// enqueued; a denial is a silent drop, never an error returned to the
// sender, so a probing peer can't distinguish "wrong address" from
// "denied".
type AccessControl interface {
	IsAuthorized(ctx context.Context, msg LocalMessage) bool
}

// AccessControlFunc adapts a plain function to the AccessControl
// interface.
type AccessControlFunc func(ctx context.Context, msg LocalMessage) bool

func (f AccessControlFunc) IsAuthorized(ctx context.Context, msg LocalMessage) bool {
	return f(ctx, msg)
}

// AllowAll approves every message. Used sparingly — the default for a
// freshly created mailbox is DenyAll, not this.
var AllowAll AccessControl = AccessControlFunc(func(context.Context, LocalMessage) bool {
	return true
})

// DenyAll approves nothing. This is the default incoming and outgoing
// AC for a mailbox that doesn't explicitly configure one, so a worker
// that forgets to wire access control fails closed rather than open.
var DenyAll AccessControl = AccessControlFunc(func(context.Context, LocalMessage) bool {
	return false
})

// AllowSourceAddress approves a message iff its return route's first
// hop (the sender's own address, pushed there by the router as it
// forwarded the message) is addr.
func AllowSourceAddress(addr Address) AccessControl {
	return AccessControlFunc(func(_ context.Context, msg LocalMessage) bool {
		src, _, ok := msg.Return.Next()
		return ok && src == addr
	})
}

// AllowDestinationAddress approves a message iff the next hop of its
// onward route is addr.
func AllowDestinationAddress(addr Address) AccessControl {
	return AccessControlFunc(func(_ context.Context, msg LocalMessage) bool {
		dst, _, ok := msg.Onward.Next()
		return ok && dst == addr
	})
}

// IdentityIdAccessControl approves a message iff a secure-channel
// decryptor has stamped it with one of the identifiers in set. A
// message with no IdentitySecureChannelLocalInfo at all — one that
// never crossed a secure channel — is denied.
func IdentityIdAccessControl(set ...identity.Identifier) AccessControl {
	allowed := make(map[identity.Identifier]bool, len(set))
	for _, id := range set {
		allowed[id] = true
	}
	return AccessControlFunc(func(_ context.Context, msg LocalMessage) bool {
		id, ok := msg.Identity()
		return ok && allowed[id]
	})
}

// AbacAccessControl approves a message iff the stamped peer identifier
// has the named attribute set to the named value in attrs, scoped to
// nodeName. A missing or errored lookup, an
// expired entry (already filtered out by the repository's lazy-expiry
// Get), or a message with no stamped identity all deny.
func AbacAccessControl(attrs repository.IdentityAttributesRepository, nodeName, attrName string, attrValue []byte) AccessControl {
	return AccessControlFunc(func(ctx context.Context, msg LocalMessage) bool {
		id, ok := msg.Identity()
		if !ok {
			return false
		}
		entry, err := attrs.Get(ctx, nodeName, id)
		if err != nil || entry == nil {
			return false
		}
		got, ok := entry.Attributes[attrName]
		if !ok {
			return false
		}
		return bytes.Equal(got, attrValue)
	})
}

// FlowControlAccessControl approves a message iff its flow-control
// stamp matches id and, when table is non-nil, table also confirms the
// message's source address (first return hop) is a registered producer
// for id. Passing a nil table leaves the stamp-only check.
func FlowControlAccessControl(id string, table *FlowControlTable) AccessControl {
	return AccessControlFunc(func(_ context.Context, msg LocalMessage) bool {
		stamp, ok := msg.FlowControlID()
		if !ok || stamp != id {
			return false
		}
		if table == nil {
			return true
		}
		src, _, ok := msg.Return.Next()
		if !ok {
			return false
		}
		return table.IsProducer(id, src)
	})
}

// FlowControlConsumerAccessControl approves a message iff some address
// on its onward or return route has been registered as a consumer of
// id via AddConsumer. Unlike FlowControlAccessControl, it does not
// require an existing flow-control stamp — a consumer is admitting
// itself for the first time, not proving it already passed through a
// channel. A secure channel's encryptor uses this to gate which local
// workers may hand it plaintext to seal and send to the peer.
func FlowControlConsumerAccessControl(id string, table *FlowControlTable) AccessControl {
	return AccessControlFunc(func(_ context.Context, msg LocalMessage) bool {
		if table == nil {
			return false
		}
		for _, addr := range msg.Onward {
			if table.IsConsumer(id, addr) {
				return true
			}
		}
		for _, addr := range msg.Return {
			if table.IsConsumer(id, addr) {
				return true
			}
		}
		return false
	})
}
