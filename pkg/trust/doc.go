// Package trust implements the credential-issuance and trust-authority
// layer atop pkg/securechannel and pkg/identity: an
// enrollment-token manager, an authority-backed CredentialVerifier, a
// rate-limited credentials-issuer worker, a credentials-server worker
// that accepts presented credentials and optionally presents back, and
// a CredentialRetriever abstraction (remote, over an established
// channel, or local, from the repository cache) that a TrustContext
// bundles together for an application to enroll and refresh with.
package trust
