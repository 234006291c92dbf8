// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ory/fosite/handler/openid"
	"github.com/spf13/cobra"

	"github.com/nexauth/oidcserver/authserverconfig"
	"github.com/nexauth/oidcserver/internal/clientauth"
	"github.com/nexauth/oidcserver/internal/clock"
	"github.com/nexauth/oidcserver/internal/discovery"
	"github.com/nexauth/oidcserver/internal/engine"
	"github.com/nexauth/oidcserver/internal/handlers"
	"github.com/nexauth/oidcserver/internal/httpclient"
	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/obslog"
	"github.com/nexauth/oidcserver/internal/session"
	"github.com/nexauth/oidcserver/internal/store/fositestore"
)

const (
	defaultGracefulTimeout   = 30 * time.Second
	defaultListenAddr        = ":8080"
	defaultAssertionTTL      = 5 * time.Minute
	defaultJWKSCacheTTL      = 10 * time.Minute
	defaultLogoutConcurrency = 10
	defaultLogoutTimeout     = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	Long: `serve loads a YAML configuration file, compiles it into a running
protocol engine, and serves every enabled endpoint over HTTP until
interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "path to the YAML configuration file")
	serveCmd.Flags().String("listen-addr", "", "address to listen on (overrides the config file's listen_addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		obslog.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath, _ := cmd.Flags().GetString("config")
	fc, err := loadFileConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	if listenAddr == "" {
		listenAddr = fc.ListenAddr
	}
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	cfg, err := buildConfig(fc)
	if err != nil {
		return fmt.Errorf("building config: %w", err)
	}

	handler, err := compile(cfg, fc)
	if err != nil {
		return fmt.Errorf("compiling engine: %w", err)
	}

	server := &http.Server{
		Addr:    listenAddr,
		Handler: handler,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		obslog.Infow("listening", "addr", listenAddr, "issuer", cfg.Issuer)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		obslog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	obslog.Info("shutdown complete")
	return nil
}

// compile wires a validated authserverconfig.Config into a running
// handlers.Handler, generalizing the teacher runner package's
// embeddedauthserver responsibility (turning a Config into an http.Handler)
// to this engine's full grant/endpoint surface.
func compile(cfg *authserverconfig.Config, fc *fileConfig) (http.Handler, error) {
	clk := clock.Real{}

	clients, scopes, resources, sessions, registry, replay, devices, ciba, par := buildStores(cfg)

	for _, c := range cfg.Clients {
		if err := clients.PutClient(context.Background(), clientInfoFromConfig(c)); err != nil {
			return nil, fmt.Errorf("registering client %s: %w", c.ID, err)
		}
	}

	hmacSecrets := engine.NewHMACSecrets(cfg.HMACSecret)
	hmacSecrets.Rotated = cfg.RotatedHMACSecrets

	engineConfig, err := engine.NewAuthorizationServerConfig(&engine.AuthorizationServerParams{
		Issuer:               cfg.Issuer,
		AccessTokenLifespan:  cfg.AccessTokenLifespan,
		RefreshTokenLifespan: cfg.RefreshTokenLifespan,
		AuthCodeLifespan:     cfg.AuthCodeLifespan,
		HMACSecrets:          hmacSecrets,
		SigningKeyID:         cfg.SigningKey.KeyID,
		SigningKeyAlgorithm:  cfg.SigningKey.Algorithm,
		SigningKey:           cfg.SigningKey.Key,
		EnforcePKCE:          cfg.EnforcePKCE,
	})
	if err != nil {
		return nil, fmt.Errorf("compiling engine config: %w", err)
	}

	storage := fositestore.New(clients, registry)
	sessionPrototype := openid.NewDefaultSession()

	provider := engine.NewAuthorizationServer(engineConfig, storage, sessionPrototype,
		engine.AuthorizeCodeGrantFactory,
		engine.RefreshTokenGrantFactory,
		engine.ClientCredentialsGrantFactory,
		engine.PKCEFactory,
		engine.OpenIDConnectExplicitFactory,
		engine.IntrospectionFactory,
		engine.RevocationFactory,
	)

	validators := &engine.Validators{
		Clients:   clients,
		Scopes:    scopes,
		Resources: resources,
		Issuer:    cfg.Issuer,
	}

	httpClient := httpclient.New(httpclient.Options{})
	remoteJWKS := jwtkit.NewRemoteJWKS(httpClient, defaultJWKSCacheTTL)

	paths, err := resolvePaths(fc.Routes)
	if err != nil {
		return nil, fmt.Errorf("resolving routes: %w", err)
	}

	tokenEndpointAudience := func() string { return cfg.Issuer + paths.Token }
	clientAuth := clientauth.NewDispatcher(clients,
		clientauth.SecretBasicAuthenticator{},
		clientauth.SecretPostAuthenticator{},
		clientauth.NoneAuthenticator{},
		clientauth.TLSClientAuthAuthenticator{},
		clientauth.SelfSignedTLSAuthenticator{},
		&clientauth.ClientSecretJWTAuthenticator{
			Audience:     tokenEndpointAudience,
			Replay:       replay,
			AssertionTTL: defaultAssertionTTL,
		},
		&clientauth.PrivateKeyJWTAuthenticator{
			Resolver:     clientauth.NewRemoteJWKSResolver(remoteJWKS),
			Audience:     tokenEndpointAudience,
			Replay:       replay,
			AssertionTTL: defaultAssertionTTL,
		},
	)

	disco := discovery.Builder{
		Issuer:                  cfg.Issuer,
		Endpoints:               endpointsFromPaths(cfg.Issuer, paths, cfg.Features),
		ResponseTypesSupported:  []string{"code"},
		SubjectTypesSupported:   []string{"public", "pairwise"},
		IDTokenSigningAlgValuesSupported: []string{cfg.SigningKey.Algorithm},
		GrantTypesSupported:     grantTypesSupported(cfg.Features),
		CodeChallengeMethodsSupported: []string{"S256", "plain"},
		MTLSBaseURI:             fc.MTLSBaseURI,
	}

	signer, err := jwtkit.NewSigner(jwtkit.Algorithm(cfg.SigningKey.Algorithm), cfg.SigningKey.KeyID, cfg.SigningKey.Key)
	if err != nil {
		return nil, fmt.Errorf("building response signer: %w", err)
	}

	h := handlers.NewHandler(provider, engineConfig, storage, validators, clientAuth, paths, disco)
	h.Sessions = sessions
	h.Registry = registry
	h.Replay = replay
	h.HTTPClient = httpClient
	h.Clock = clk
	h.ResponseSigner = signer
	h.LogoutSigner = &session.LogoutTokenSigner{Signer: signer, Issuer: cfg.Issuer}
	h.BackChannel = &session.BackChannelNotifier{Client: httpClient, MaxConcurrency: defaultLogoutConcurrency, PerTargetTimeout: defaultLogoutTimeout}

	if cfg.Features.EnableDeviceAuthorization {
		h.Device = &engine.DeviceAuthorizationProcessor{
			Store:            devices,
			Clock:            clk,
			CodeTTL:          cfg.DeviceCodeLifespan,
			PollInterval:     cfg.DevicePollInterval,
		}
	}
	if cfg.Features.EnableCIBA {
		h.Ciba = &engine.CibaProcessor{
			Store:        ciba,
			Clock:        clk,
			RequestTTL:   cfg.CIBARequestLifespan,
			PollInterval: cfg.CIBAPollInterval,
		}
	}
	if cfg.Features.EnablePAR {
		h.PAR = &engine.PARProcessor{
			Store: par,
			Clock: clk,
			TTL:   cfg.PARRequestLifespan,
		}
	}
	if len(cfg.TrustedAssertionIssuers) > 0 {
		h.TrustedAssertionIssuers = newTrustedIssuerResolver(cfg.TrustedAssertionIssuers, remoteJWKS)
	}

	return h.Routes(), nil
}
