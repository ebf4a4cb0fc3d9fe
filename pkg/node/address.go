// Package node implements the in-process messaging substrate: addresses
// and routing, mailboxes and access control, workers and processors,
// flow control, and cluster-labeled shutdown ordering.
package node

import (
	"strings"

	"github.com/google/uuid"
)

// Address names a mailbox within a node. Addresses are opaque strings;
// by convention a worker type prefixes its addresses with a type tag
// ("decryptor_remote.<id>") so logs and traces read sensibly, but the
// router treats the whole string as the lookup key.
type Address string

// String implements fmt.Stringer.
func (a Address) String() string {
	return string(a)
}

// GenerateAddress returns a fresh random address with the given prefix,
// suitable for workers that don't need a predictable name.
func GenerateAddress(prefix string) Address {
	suffix := uuid.NewString()
	if prefix == "" {
		return Address(suffix)
	}
	return Address(prefix + "." + suffix)
}

// AddressSet is the set of mailbox addresses a single worker or
// processor owns. A worker with more than one address (e.g. a
// decryptor's "remote" and "api" addresses) is registered under the
// whole set atomically: start_worker only returns once every address in
// the set is live in the router, and stop_worker tears down every
// address in the set together.
type AddressSet []Address

// Contains reports whether addr is one of the set's addresses.
func (s AddressSet) Contains(addr Address) bool {
	for _, a := range s {
		if a == addr {
			return true
		}
	}
	return false
}

func (s AddressSet) String() string {
	parts := make([]string, len(s))
	for i, a := range s {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}

// Route is an ordered list of addresses a message traverses. Sending
// pops the head of the onward route to find the next hop; the popped
// address is pushed to the front of the return route so a reply can
// retrace the path hop by hop.
type Route []Address

// Next returns the head of the route and the remaining tail. ok is
// false if the route is empty.
func (r Route) Next() (addr Address, rest Route, ok bool) {
	if len(r) == 0 {
		return "", nil, false
	}
	return r[0], r[1:], true
}

// Prepend returns a new route with addr pushed to the front.
func (r Route) Prepend(addr Address) Route {
	out := make(Route, 0, len(r)+1)
	out = append(out, addr)
	out = append(out, r...)
	return out
}
