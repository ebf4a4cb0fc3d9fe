// Package ockamerror defines the error taxonomy surfaced across the
// vault, identity, secure channel, node substrate, and credential
// subsystems. Callers should compare with errors.Is;
// subsystems wrap these sentinels with fmt.Errorf("...: %w", err) to add
// context, never replace them.
package ockamerror

import "errors"

// Cryptographic failures. Fatal to the operation; for a channel, fatal
// to the channel.
var (
	ErrInvalidTag                    = errors.New("aead authentication failed")
	ErrSecureChannelVerificationFailed = errors.New("secure channel verification failed")
	ErrUnsupportedScheme              = errors.New("unsupported key scheme")
)

// Consistency failures. Fatal to the component; logged with an
// attacker-suspicion flag by the caller.
var (
	ErrConsistencyError           = errors.New("consistency error")
	ErrIdentityVerificationFailed = errors.New("identity verification failed")
)

// Authorization failures. Surfaced to the local caller; never to the peer.
var (
	ErrAccessDenied                 = errors.New("access denied")
	ErrSecureChannelTrustCheckFailed = errors.New("secure channel trust check failed")
	ErrCredentialExpired            = errors.New("credential expired")
	ErrCredentialInvalid            = errors.New("credential invalid")
)

// Transient failures. Retried with bounded exponential backoff by the
// caller (see Do in retry.go); never surfaced as permanent.
var (
	ErrTimeout   = errors.New("operation timed out")
	ErrBackpressure = errors.New("mailbox full")
)

// Routing/programming failures.
var (
	ErrUnknownRoute    = errors.New("unknown route")
	ErrReplayDetected  = errors.New("replay detected")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Repository failures.
var (
	ErrNotFound = errors.New("not found")
)
