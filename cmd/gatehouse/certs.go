// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/tls"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

type certsConfig struct {
	hosts    []string
	certPath string
	keyPath  string
	validFor time.Duration
}

// NewCertsCmd creates the certs command group.
func NewCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage TLS certificates for the API",
	}

	cfg := &certsConfig{}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a self-signed certificate",
		Long: `Generate a self-signed ECDSA certificate and key for serving the API
over HTTPS in development. Point serve at them with --tls-cert and --tls-key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCertsGenerate(cmd, cfg)
		},
	}
	generate.Flags().StringSliceVar(&cfg.hosts, "host", []string{"localhost", "127.0.0.1"}, "DNS names or IPs the certificate is valid for")
	generate.Flags().StringVar(&cfg.certPath, "cert", "", "certificate output path (default: XDG_CONFIG_HOME/gatehouse/certs/server.crt)")
	generate.Flags().StringVar(&cfg.keyPath, "key", "", "key output path (default: XDG_CONFIG_HOME/gatehouse/certs/server.key)")
	generate.Flags().DurationVar(&cfg.validFor, "valid-for", tls.DefaultValidity, "certificate lifetime")
	cmd.AddCommand(generate)

	return cmd
}

func runCertsGenerate(cmd *cobra.Command, cfg *certsConfig) error {
	certPath, keyPath := cfg.certPath, cfg.keyPath
	if certPath == "" || keyPath == "" {
		dir, err := xdg.ConfigDir()
		if err != nil {
			return oops.With("operation", "resolve certs directory").Wrap(err)
		}
		if certPath == "" {
			certPath = filepath.Join(dir, "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join(dir, "certs", "server.key")
		}
	}

	cert, err := tls.GenerateSelfSigned(cfg.hosts, cfg.validFor)
	if err != nil {
		return err
	}
	if err := cert.Save(certPath, keyPath); err != nil {
		return err
	}

	cmd.Printf("Certificate: %s\n", certPath)
	cmd.Printf("Key:         %s\n", keyPath)
	cmd.Printf("Valid until: %s\n", cert.Certificate.NotAfter.Format(time.RFC3339))
	return nil
}
