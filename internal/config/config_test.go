package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupFromMap(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(lookupFromMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode = %q, want dev", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q, want text (dev default)", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug (dev default)", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != DefaultShutdown {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, DefaultShutdown)
	}
	if cfg.SignalingWSIdleTimeout != DefaultSignalingWSIdleTimeout {
		t.Errorf("SignalingWSIdleTimeout = %v, want %v", cfg.SignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Errorf("MaxSignalingMessageBytes = %d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.RecordingsDir != DefaultRecordingsDir {
		t.Errorf("RecordingsDir = %q, want %q", cfg.RecordingsDir, DefaultRecordingsDir)
	}
	if cfg.TURNIssuer.Enabled() {
		t.Error("TURNIssuer.Enabled() = true without issuer URL")
	}
	if cfg.TURNREST.Enabled() {
		t.Error("TURNREST.Enabled() = true without shared secret")
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Errorf("ICEConfigError() = %v, want nil", err)
	}
	if len(cfg.ICEServers) != 0 {
		t.Errorf("ICEServers = %v, want empty", cfg.ICEServers)
	}
}

func TestLoadProdModeSwitchesLogDefaults(t *testing.T) {
	env := map[string]string{
		"DUOCALL_MODE": "prod",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q, want json in prod", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info in prod", cfg.LogLevel)
	}
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	env := map[string]string{
		"DUOCALL_LISTEN_ADDR": "127.0.0.1:9999",
		"DUOCALL_MODE":        "dev",
	}
	cfg, err := load(lookupFromMap(env), []string{
		"--listen-addr", "0.0.0.0:8443",
		"--mode", "prod",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8443" {
		t.Errorf("ListenAddr = %q, want flag value", cfg.ListenAddr)
	}
	if cfg.Mode != ModeProd {
		t.Errorf("Mode = %q, want prod", cfg.Mode)
	}
	// Mode came from a flag so log defaults follow the flag's mode.
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q, want json after --mode prod", cfg.LogFormat)
	}
}

func TestLoadExplicitLogFormatWinsOverMode(t *testing.T) {
	env := map[string]string{
		"DUOCALL_MODE":       "prod",
		"DUOCALL_LOG_FORMAT": "text",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q, want explicit text", cfg.LogFormat)
	}
}

func TestLoadInvalidMode(t *testing.T) {
	env := map[string]string{"DUOCALL_MODE": "staging"}
	if _, err := load(lookupFromMap(env), nil); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestLoadAllowedOrigins(t *testing.T) {
	env := map[string]string{
		"ALLOWED_ORIGINS": "https://app.example.com, http://localhost:3000",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"https://app.example.com", "http://localhost:3000"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.AllowedOrigins[i] != want[i] {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], want[i])
		}
	}
}

func TestLoadInvalidAllowedOrigin(t *testing.T) {
	env := map[string]string{"ALLOWED_ORIGINS": "not an origin"}
	if _, err := load(lookupFromMap(env), nil); err == nil {
		t.Fatal("expected error for malformed origin")
	}
}

func TestLoadWildcardOrigin(t *testing.T) {
	env := map[string]string{"ALLOWED_ORIGINS": "*"}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.AllowedOrigins)
	}
}

func TestLoadPublicBaseURLTrimsTrailingSlash(t *testing.T) {
	env := map[string]string{"DUOCALL_PUBLIC_BASE_URL": "https://call.example.com/"}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PublicBaseURL != "https://call.example.com" {
		t.Errorf("PublicBaseURL = %q, want trailing slash stripped", cfg.PublicBaseURL)
	}
}

func TestLoadPingIntervalMustBeBelowIdleTimeout(t *testing.T) {
	env := map[string]string{
		"SIGNALING_WS_IDLE_TIMEOUT":  "10s",
		"SIGNALING_WS_PING_INTERVAL": "10s",
	}
	if _, err := load(lookupFromMap(env), nil); err == nil {
		t.Fatal("expected error when ping interval >= idle timeout")
	}
}

func TestLoadTURNIssuer(t *testing.T) {
	env := map[string]string{
		"TURN_ISSUER_URL":         "https://global.turn.example.com/_turn/",
		"TURN_ISSUER_IDENT":       "duocall",
		"TURN_ISSUER_SECRET":      "s3cret",
		"TURN_ISSUER_CHANNEL":     "prod",
		"TURN_ISSUER_TTL_SECONDS": "7200",
		"TURN_ISSUER_TIMEOUT":     "500ms",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.TURNIssuer.Enabled() {
		t.Fatal("TURNIssuer.Enabled() = false")
	}
	if got := cfg.TURNIssuer.Endpoint(); got != "https://global.turn.example.com/_turn/prod" {
		t.Errorf("Endpoint() = %q", got)
	}
	if cfg.TURNIssuer.TTLSeconds != 7200 {
		t.Errorf("TTLSeconds = %d, want 7200", cfg.TURNIssuer.TTLSeconds)
	}
	if cfg.TURNIssuer.Timeout != 500*time.Millisecond {
		t.Errorf("Timeout = %v, want 500ms", cfg.TURNIssuer.Timeout)
	}
}

func TestLoadTURNURLsWithoutCredsRejectedWhenNoEphemeralSource(t *testing.T) {
	env := map[string]string{
		"DUOCALL_TURN_URLS": "turn:turn.example.com:3478",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatal("expected ICE config error for TURN URLs without credentials")
	}
	if len(cfg.ICEServers) != 0 {
		t.Errorf("ICEServers = %v, want empty on config error", cfg.ICEServers)
	}
}

func TestLoadTURNURLsWithoutCredsAllowedWithTURNREST(t *testing.T) {
	env := map[string]string{
		"DUOCALL_TURN_URLS":       "turn:turn.example.com:3478",
		"TURN_REST_SHARED_SECRET": "coturn-secret",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError() = %v, want nil when TURN REST is enabled", err)
	}
	if len(cfg.TURNURLs) != 1 || cfg.TURNURLs[0] != "turn:turn.example.com:3478" {
		t.Errorf("TURNURLs = %v", cfg.TURNURLs)
	}
}

func TestStaticServerPartition(t *testing.T) {
	env := map[string]string{
		"DUOCALL_STUN_URLS":       "stun:stun.l.google.com:19302",
		"DUOCALL_TURN_URLS":       "turn:turn.example.com:3478",
		"DUOCALL_TURN_USERNAME":   "user",
		"DUOCALL_TURN_CREDENTIAL": "pass",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError() = %v", err)
	}

	stun := cfg.StaticSTUNServers()
	if len(stun) != 1 || !strings.HasPrefix(stun[0].URLs[0], "stun:") {
		t.Errorf("StaticSTUNServers() = %v", stun)
	}
	turn := cfg.StaticTURNServers()
	if len(turn) != 1 || turn[0].Username != "user" {
		t.Errorf("StaticTURNServers() = %v", turn)
	}
}

func TestStaticTURNServersExcludesIncompleteCreds(t *testing.T) {
	env := map[string]string{
		"DUOCALL_TURN_URLS":       "turn:turn.example.com:3478",
		"TURN_REST_SHARED_SECRET": "coturn-secret",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.StaticTURNServers(); len(got) != 0 {
		t.Errorf("StaticTURNServers() = %v, want empty for credential-less TURN", got)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		logger, err := NewLogger(Config{LogFormat: format, LogLevel: slog.LevelInfo})
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", format, err)
		}
		if logger == nil {
			t.Fatalf("NewLogger(%q) returned nil", format)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}
