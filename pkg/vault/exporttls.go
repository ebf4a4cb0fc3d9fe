package vault

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ockam/ockam/pkg/ockamerror"
)

// ExportTLSCertificate wraps the signing key behind h as a self-signed
// tls.Certificate, so an embedding application that needs a
// crypto/tls.Config at some transport boundary can use a vault-held key
// without the vault ever handing out raw private key bytes: the
// certificate's private key is a vaultSigner, which calls back into the
// vault to produce each signature.
//
// Only Ed25519 purpose keys are supported. A P-256 key signs over
// SHA-256(data) internally (see Sign), but x509.CreateCertificate for an
// ECDSA key already hashes the TBS certificate itself before calling the
// signer, so routing that through Sign would hash twice and produce a
// certificate whose signature never verifies.
func ExportTLSCertificate(v Vault, h Handle, commonName string, validFor time.Duration) (*tls.Certificate, error) {
	pub, err := v.VerifyingPublicKey(h)
	if err != nil {
		return nil, fmt.Errorf("vault: exporting tls certificate: %w", err)
	}
	if pub.Scheme != Ed25519 {
		return nil, fmt.Errorf("vault: %w: tls export only supports Ed25519 keys, got %v", ockamerror.ErrUnsupportedScheme, pub.Scheme)
	}

	signer := &vaultSigner{v: v, h: h, pub: pub}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("vault: generating certificate serial: %w", err)
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		SignatureAlgorithm:    x509.PureEd25519,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	if err != nil {
		return nil, fmt.Errorf("vault: self-signing tls certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("vault: parsing self-signed tls certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  signer,
		Leaf:        leaf,
	}, nil
}

// vaultSigner adapts a vault-held Ed25519 signing key to crypto.Signer
// so x509.CreateCertificate (and crypto/tls itself, once installed in a
// tls.Certificate) can use it without ever seeing the private key.
// ExportTLSCertificate only ever constructs one over an Ed25519 handle.
type vaultSigner struct {
	v   Vault
	h   Handle
	pub PublicKey
}

func (s *vaultSigner) Public() crypto.PublicKey {
	return ed25519.PublicKey(s.pub.Bytes)
}

// Sign implements crypto.Signer. digest is the full message, not a
// pre-hashed digest: Ed25519 signs the message directly
// (opts.HashFunc() == 0), which is exactly what Sign's own Ed25519 path
// does.
func (s *vaultSigner) Sign(_ io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	sig, err := s.v.Sign(s.h, digest)
	if err != nil {
		return nil, err
	}
	return []byte(sig), nil
}

