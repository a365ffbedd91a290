// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package tls provides certificate generation and loading for serving the
// Gatehouse API over HTTPS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// DefaultValidity is the lifetime of generated certificates.
const DefaultValidity = 365 * 24 * time.Hour

// Certificate holds a self-signed server certificate and its private key.
type Certificate struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateSelfSigned creates a self-signed ECDSA P-256 server certificate
// for hosts. Hosts that parse as IP addresses become IP SANs; the rest
// become DNS SANs. The first host is the common name.
func GenerateSelfSigned(hosts []string, validFor time.Duration) (*Certificate, error) {
	if len(hosts) == 0 {
		return nil, oops.Code("TLS_HOSTS_REQUIRED").Errorf("at least one host is required")
	}
	if validFor <= 0 {
		validFor = DefaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_KEY_GENERATE_FAILED").Wrap(err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, oops.Code("TLS_SERIAL_GENERATE_FAILED").Wrap(err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Gatehouse"},
			CommonName:   hosts[0],
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("TLS_CERT_CREATE_FAILED").With("hosts", hosts).Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_CERT_CREATE_FAILED").With("hosts", hosts).Wrap(err)
	}

	return &Certificate{Certificate: cert, PrivateKey: key}, nil
}

// Save writes the certificate and key as PEM files, creating parent
// directories. Both files are written with 0600 permissions.
func (c *Certificate) Save(certPath, keyPath string) error {
	for _, p := range []string{certPath, keyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return oops.Code("TLS_SAVE_FAILED").With("path", p).Wrap(err)
		}
	}

	if err := writePEM(certPath, "CERTIFICATE", c.Certificate.Raw); err != nil {
		return err
	}

	keyBytes, err := x509.MarshalECPrivateKey(c.PrivateKey)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", keyPath).Wrap(err)
	}
	return writePEM(keyPath, "EC PRIVATE KEY", keyBytes)
}

// LoadServerConfig loads a PEM certificate and key pair into a server
// TLS config requiring TLS 1.2 or later.
func LoadServerConfig(certFile, keyFile string) (*cryptotls.Config, error) {
	pair, err := cryptotls.LoadX509KeyPair(filepath.Clean(certFile), filepath.Clean(keyFile))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").
			With("cert_file", certFile).
			With("key_file", keyFile).
			Wrap(err)
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{pair},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}

	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}

	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
