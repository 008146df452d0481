package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/duocall/duocall/internal/config"
	"github.com/duocall/duocall/internal/httpserver"
	"github.com/duocall/duocall/internal/metrics"
	"github.com/duocall/duocall/internal/recordings"
	"github.com/duocall/duocall/internal/room"
	"github.com/duocall/duocall/internal/signaling"
	"github.com/duocall/duocall/internal/turncred"
	"github.com/duocall/duocall/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	// Keep serving on a bad static ICE config; /readyz reports it and the
	// credential provider degrades to whatever sources remain.
	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("invalid static ICE server configuration", "err", err)
	}

	logger.Info("starting duocall",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"turn_issuer_configured", cfg.TURNIssuer.Enabled(),
		"turn_rest_configured", cfg.TURNREST.Enabled(),
		"static_turn_servers", len(cfg.StaticTURNServers()),
		"recordings_dir", cfg.RecordingsDir,
	)

	met := metrics.New()
	creds, err := buildCredentialProvider(cfg, logger, met)
	if err != nil {
		logger.Error("failed to configure TURN credentials", "err", err)
		os.Exit(2)
	}

	logStartupSecurityWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	store := recordings.NewStore(cfg.RecordingsDir)
	srv := httpserver.New(cfg, logger, resolveBuildInfo(buildCommit, buildTime), creds, store, met)

	hub := signaling.NewHub(room.NewRegistry(), met, logger, signaling.HubOptions{
		MaxMessageBytes: cfg.MaxSignalingMessageBytes,
		IdleTimeout:     cfg.SignalingWSIdleTimeout,
		PingInterval:    cfg.SignalingWSPingInterval,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	srv.Mux().Handle("GET /ws", signaling.NewServer(cfg, hub, logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		stopHub()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func buildCredentialProvider(cfg config.Config, logger *slog.Logger, met *metrics.Metrics) (*turncred.Provider, error) {
	pc := turncred.ProviderConfig{
		STUN:       cfg.StaticSTUNServers(),
		StaticTURN: cfg.StaticTURNServers(),
		TURNURLs:   cfg.TURNURLs,
		Logger:     logger,
		Metrics:    met,
	}

	if cfg.TURNIssuer.Enabled() {
		issuer, err := turncred.NewIssuerClient(turncred.IssuerConfig{
			Endpoint:   cfg.TURNIssuer.Endpoint(),
			Ident:      cfg.TURNIssuer.Ident,
			Secret:     cfg.TURNIssuer.Secret,
			TTLSeconds: cfg.TURNIssuer.TTLSeconds,
			Timeout:    cfg.TURNIssuer.Timeout,
		})
		if err != nil {
			return nil, err
		}
		pc.Issuer = issuer
	}

	if cfg.TURNREST.Enabled() {
		gen, err := turnrest.NewGenerator(turnrest.GeneratorConfig{
			SharedSecret:   cfg.TURNREST.SharedSecret,
			TTLSeconds:     cfg.TURNREST.TTLSeconds,
			UsernamePrefix: cfg.TURNREST.UsernamePrefix,
		})
		if err != nil {
			return nil, err
		}
		pc.REST = gen
	}

	return turncred.NewProvider(pc), nil
}

func resolveBuildInfo(commit, buildTime string) httpserver.BuildInfo {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return httpserver.BuildInfo{Commit: commit, BuildTime: buildTime}
}
