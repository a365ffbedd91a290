// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/api"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/tls"
)

// serveFlags maps serve flags to the config keys they override.
var serveFlags = []struct {
	name string
	key  string
}{
	{"http-addr", "http.addr"},
	{"metrics-addr", "metrics.addr"},
	{"store", "store"},
	{"log-level", "log.level"},
	{"log-format", "log.format"},
	{"auto-migrate", "database.auto_migrate"},
	{"tls-cert", "http.tls_cert_file"},
	{"tls-key", "http.tls_key_file"},
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the HTTP API serving registration, login, and session
endpoints, plus the metrics and health listener when configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("http-addr", "", "API listen address (default :3000)")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("store", "", "storage backend: postgres or memory")
	cmd.Flags().String("log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().String("log-format", "", "log format: json or text")
	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations on startup")
	cmd.Flags().String("tls-cert", "", "PEM certificate for serving HTTPS (requires --tls-key)")
	cmd.Flags().String("tls-key", "", "PEM private key for serving HTTPS (requires --tls-cert)")

	for _, f := range serveFlags {
		if err := config.BindFlag(cmd.Flags(), f.name, f.key); err != nil {
			panic(err)
		}
	}

	return cmd
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.BackendFactory == nil {
		out.BackendFactory = func(ctx context.Context, cfg *config.Config) (*Backend, error) {
			return openBackend(ctx, cfg, nil)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	if out.LogWriter == nil {
		out.LogWriter = os.Stderr
	}
	return &out
}

// runServeWithDeps runs the API until ctx is cancelled, a shutdown signal
// arrives, or a listener fails. If deps is nil, default implementations
// are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger, err := logging.Setup(logging.Options{
		Service: "gatehouse",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	}, deps.LogWriter)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.InfoContext(ctx, "starting gatehouse",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store,
	)

	backend, err := deps.BackendFactory(ctx, cfg)
	if err != nil {
		return oops.With("operation", "open backend").Wrap(err)
	}
	defer backend.Close()

	var (
		obsServer ObservabilityServer
		recorder  auth.Recorder
		apiMetric api.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, backend.Ready)
		if m := obsServer.Metrics(); m != nil {
			recorder = m
			apiMetric = m
		}
	}

	svc, err := buildService(cfg, backend, logger, recorder)
	if err != nil {
		return err
	}

	handler, err := api.NewRouter(api.Options{
		Service:          svc,
		Logger:           logger,
		Metrics:          apiMetric,
		RequestTimeout:   cfg.HTTP.RequestTimeout,
		CORSOrigins:      cfg.HTTP.CORSOrigins,
		UserExistsStatus: cfg.Auth.UserExistsStatus,
	})
	if err != nil {
		return err
	}

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer stopObservability(obsServer, cfg)
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		slog.InfoContext(ctx, "observability server started", "addr", obsServer.Addr())
	}

	listener, err := listenAPI(cfg, deps.ListenerFactory)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiErrCh <- err
		}
	}()

	addr := listener.Addr().String()
	cmd.Println("Gatehouse listening on " + addr)
	slog.InfoContext(ctx, "gatehouse ready", "http_addr", addr, "tls", cfg.HTTP.TLSCertFile != "")
	if deps.OnReady != nil {
		deps.OnReady(addr)
	}

	var serveErr error
	select {
	case err, ok := <-apiErrCh:
		if ok {
			serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
			slog.ErrorContext(ctx, "api server error", "error", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error shutting down api server", "error", err)
	}

	slog.Info("shutdown complete")
	return serveErr
}

// listenAPI binds the API address, wrapping the listener in TLS when a
// certificate is configured.
func listenAPI(cfg *config.Config, listen func(network, address string) (net.Listener, error)) (net.Listener, error) {
	var tlsConfig *cryptotls.Config
	if cfg.HTTP.TLSCertFile != "" {
		var err error
		tlsConfig, err = tls.LoadServerConfig(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile)
		if err != nil {
			return nil, err
		}
	}

	listener, err := listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return nil, oops.Code("HTTP_LISTEN_FAILED").
			With("addr", cfg.HTTP.Addr).
			Wrap(err)
	}
	if tlsConfig != nil {
		listener = cryptotls.NewListener(listener, tlsConfig)
	}
	return listener, nil
}

// buildService assembles the auth service from configuration. A nil
// recorder leaves operations unobserved.
func buildService(cfg *config.Config, backend *Backend, logger *slog.Logger, recorder auth.Recorder) (*auth.Service, error) {
	hasher, err := auth.NewPasswordHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewJWTIssuer(auth.TokenConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.JWTIssuer,
		TTL:    cfg.Auth.TokenTTL,
	})
	if err != nil {
		return nil, err
	}

	opts := []auth.Option{
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithLogger(logger),
	}
	if recorder != nil {
		opts = append(opts, auth.WithRecorder(recorder))
	}
	return auth.NewAuthService(backend.Users, backend.Sessions, hasher, tokens, opts...)
}

func stopObservability(server ObservabilityServer, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels the context when a server reports an error.
// It exits when an error is received, the channel is closed, or the
// context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
