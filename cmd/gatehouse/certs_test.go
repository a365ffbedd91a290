// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/tls"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestCertsGenerate_DefaultPaths(t *testing.T) {
	out, err := runCLI(t, "certs", "generate")
	require.NoError(t, err)

	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "gatehouse", "certs")
	assert.Contains(t, out, filepath.Join(dir, "server.crt"))
	assert.FileExists(t, filepath.Join(dir, "server.crt"))
	assert.FileExists(t, filepath.Join(dir, "server.key"))
}

func TestCertsGenerate_ExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "api.crt")
	keyPath := filepath.Join(dir, "api.key")

	_, err := runCLI(t, "certs", "generate",
		"--host", "auth.example.test",
		"--cert", certPath,
		"--key", keyPath,
		"--valid-for", "2h",
	)
	require.NoError(t, err)

	cfg, err := tls.LoadServerConfig(certPath, keyPath)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"auth.example.test"}, leaf.DNSNames)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), leaf.NotAfter, time.Minute)
}

func TestRunServeWithDeps_TLS(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	cert, err := tls.GenerateSelfSigned([]string{"127.0.0.1"}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, cert.Save(certPath, keyPath))

	cfg := testServeConfig(t)
	cfg.HTTP.TLSCertFile = certPath
	cfg.HTTP.TLSKeyFile = keyPath

	addr, cancel, done := startServe(t, cfg, &ServeDeps{BackendFactory: memoryBackend(nil)})
	defer cancel()

	roots := x509.NewCertPool()
	roots.AddCert(cert.Certificate)
	client := &http.Client{Transport: &http.Transport{
		DisableKeepAlives: true,
		TLSClientConfig:   &cryptotls.Config{RootCAs: roots, MinVersion: cryptotls.VersionTLS12},
	}}

	resp, err := client.Get("https://" + addr + "/healthz")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	cancel()
	require.NoError(t, waitServe(t, done))
}

func TestRunServeWithDeps_TLSLoadError(t *testing.T) {
	restoreDefaultLogger(t)
	cfg := testServeConfig(t)
	cfg.HTTP.TLSCertFile = filepath.Join(t.TempDir(), "missing.crt")
	cfg.HTTP.TLSKeyFile = filepath.Join(t.TempDir(), "missing.key")

	err := runServeWithDeps(t.Context(), cfg, NewServeCmd(), &ServeDeps{
		BackendFactory: memoryBackend(nil),
		LogWriter:      &lockedBuffer{},
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
}
