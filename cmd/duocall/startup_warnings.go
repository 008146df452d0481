package main

import (
	"log/slog"

	"github.com/duocall/duocall/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && len(cfg.AllowedOrigins) == 0 {
		logger.Warn("startup security warning: ALLOWED_ORIGINS is unset while --mode=prod (same-host policy only)",
			"warning_code", "allowed_origins_unset_in_prod",
			"mode", cfg.Mode,
		)
	}

	// Without any relay source, clients behind symmetric NATs cannot
	// establish media paths; calls will fail for a subset of users.
	if !cfg.TURNIssuer.Enabled() && !cfg.TURNREST.Enabled() && len(cfg.StaticTURNServers()) == 0 {
		logger.Warn("startup warning: no TURN relay configured (issuer, TURN REST, and static TURN all unset); clients on restrictive NATs will fail to connect",
			"warning_code", "no_turn_relay_configured",
			"mode", cfg.Mode,
		)
	}

	if cfg.TURNIssuer.Enabled() && cfg.TURNIssuer.Secret == "" {
		logger.Warn("startup security warning: TURN_ISSUER_URL is set without TURN_ISSUER_SECRET",
			"warning_code", "turn_issuer_secret_unset",
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
