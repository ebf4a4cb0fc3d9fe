package vault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/vault"
)

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	v := vault.New()
	h, err := v.GenerateSigningKey(vault.Ed25519)
	require.NoError(t, err)

	pub, err := v.VerifyingPublicKey(h)
	require.NoError(t, err)

	data := []byte("hello ockam")
	sig, err := v.Sign(h, data)
	require.NoError(t, err)

	ok, err := v.Verify(pub, data, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(pub, []byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestP256SignVerifyRoundTrip(t *testing.T) {
	v := vault.New()
	h, err := v.GenerateSigningKey(vault.P256)
	require.NoError(t, err)

	pub, err := v.VerifyingPublicKey(h)
	require.NoError(t, err)

	data := []byte("hello ockam p256")
	sig, err := v.Sign(h, data)
	require.NoError(t, err)

	ok, err := v.Verify(pub, data, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestX25519DHAgreement(t *testing.T) {
	v := vault.New()
	aPriv, err := v.X25519GenerateKey()
	require.NoError(t, err)
	bPriv, err := v.X25519GenerateKey()
	require.NoError(t, err)

	aPub, err := v.X25519PublicKey(aPriv)
	require.NoError(t, err)
	bPub, err := v.X25519PublicKey(bPriv)
	require.NoError(t, err)

	aShared, err := v.X25519DH(aPriv, bPub)
	require.NoError(t, err)
	bShared, err := v.X25519DH(bPriv, aPub)
	require.NoError(t, err)

	aKeys, err := v.HKDFSHA256(aShared, aShared, 1)
	require.NoError(t, err)
	bKeys, err := v.HKDFSHA256(bShared, bShared, 1)
	require.NoError(t, err)

	plaintext := []byte("shared secret material matches")
	nonce := make([]byte, 12)
	ct, err := v.AEADSeal(aKeys[0], plaintext, nonce, nil)
	require.NoError(t, err)

	pt, err := v.AEADOpen(bKeys[0], ct, nonce, nil)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestAEADOpenFailsOnTamperedCiphertext(t *testing.T) {
	v := vault.New()
	h, err := v.GenerateAEADKey()
	require.NoError(t, err)

	nonce := make([]byte, 12)
	ct, err := v.AEADSeal(h, []byte("payload"), nonce, []byte("aad"))
	require.NoError(t, err)

	ct[0] ^= 0xFF
	_, err = v.AEADOpen(h, ct, nonce, []byte("aad"))
	assert.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	v := vault.New()
	h, err := v.GenerateAEADKey()
	require.NoError(t, err)

	require.NoError(t, v.Delete(h))
	require.NoError(t, v.Delete(h))

	_, err = v.AEADSeal(h, []byte("x"), make([]byte, 12), nil)
	assert.Error(t, err)
}
