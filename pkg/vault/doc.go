/*
Package vault is the sole custodian of key material in the core.

Every other subsystem — identity, secure channel, credentials — holds
only vault.Handle values, never raw keys. The single implementation,
SoftwareVault, keeps secrets in an in-process map guarded by one
sync.RWMutex, matching the mutex-guarded single-cache shape the rest of
the core's in-memory state uses (see pkg/repository/memory).

Handle deletion is idempotent. No operation panics on malformed input;
failures are always a returned error, typically wrapping one of the
sentinels in pkg/ockamerror.
*/
package vault
