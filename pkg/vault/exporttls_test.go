package vault_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/vault"
)

func TestExportTLSCertificateSelfSigned(t *testing.T) {
	v := vault.New()
	h, err := v.GenerateSigningKey(vault.Ed25519)
	require.NoError(t, err)

	cert, err := vault.ExportTLSCertificate(v, h, "node.ockam", time.Hour)
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)

	// the certificate must verify against its own embedded public key: a
	// signer that hands x509.CreateCertificate a wrong or double-hashed
	// signature would still produce DER bytes, just bytes that fail
	// this check.
	require.NoError(t, cert.Leaf.CheckSignature(cert.Leaf.SignatureAlgorithm, cert.Leaf.RawTBSCertificate, cert.Leaf.Signature))
	assert.Equal(t, "node.ockam", cert.Leaf.Subject.CommonName)
}

func TestExportTLSCertificateRejectsP256(t *testing.T) {
	v := vault.New()
	h, err := v.GenerateSigningKey(vault.P256)
	require.NoError(t, err)

	_, err = vault.ExportTLSCertificate(v, h, "node.ockam", time.Hour)
	assert.Error(t, err)
}

func TestExportTLSCertificateRejectsUnknownHandle(t *testing.T) {
	v := vault.New()
	_, err := vault.ExportTLSCertificate(v, "nonexistent", "node.ockam", time.Hour)
	assert.Error(t, err)
}
