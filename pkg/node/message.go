package node

import "github.com/ockam/ockam/pkg/identity"

// LocalInfo is metadata a worker attaches to a message as it passes
// through — e.g. a decryptor stamping the verified identifier of the
// secure-channel peer that produced the plaintext, or a transport
// listener stamping its flow-control id. Access-control predicates
// inspect LocalInfo without being able to forge it themselves, since
// only the substrate (via a worker's handle_message return) is allowed
// to attach it.
type LocalInfo interface {
	localInfo()
}

// IdentitySecureChannelLocalInfo is attached by a secure-channel
// decryptor to every plaintext it forwards, recording which identity's
// channel the message arrived on.
type IdentitySecureChannelLocalInfo struct {
	SecureChannelIdentifier identity.Identifier
}

func (IdentitySecureChannelLocalInfo) localInfo() {}

// FlowControlLocalInfo is attached by a transport listener (or any
// producer registered under a flow-control id) so that downstream
// FlowControlAccessControl checks can confirm the message's stamp
// matches a configured id.
type FlowControlLocalInfo struct {
	FlowControlID string
}

func (FlowControlLocalInfo) localInfo() {}

// LocalMessage is what the router and mailboxes actually carry: the
// wire payload, the onward and return routes, and whatever LocalInfo
// has accumulated so far. Both the incoming and outgoing access-control
// checks receive the whole LocalMessage.
type LocalMessage struct {
	Payload   []byte
	Onward    Route
	Return    Route
	LocalInfo []LocalInfo
}

// WithLocalInfo returns a copy of m with info appended.
func (m LocalMessage) WithLocalInfo(info LocalInfo) LocalMessage {
	out := m
	out.LocalInfo = append(append([]LocalInfo(nil), m.LocalInfo...), info)
	return out
}

// Identity returns the identifier stamped by a secure-channel decryptor,
// if any IdentitySecureChannelLocalInfo is present.
func (m LocalMessage) Identity() (identity.Identifier, bool) {
	for _, info := range m.LocalInfo {
		if sc, ok := info.(IdentitySecureChannelLocalInfo); ok {
			return sc.SecureChannelIdentifier, true
		}
	}
	return identity.Identifier{}, false
}

// FlowControlID returns the flow-control stamp, if any
// FlowControlLocalInfo is present.
func (m LocalMessage) FlowControlID() (string, bool) {
	for _, info := range m.LocalInfo {
		if fc, ok := info.(FlowControlLocalInfo); ok {
			return fc.FlowControlID, true
		}
	}
	return "", false
}
