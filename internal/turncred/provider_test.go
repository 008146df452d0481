package turncred

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/duocall/duocall/internal/turnrest"
)

var testSTUN = []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func issuerFor(t *testing.T, srv *httptest.Server) *IssuerClient {
	t.Helper()
	c, err := NewIssuerClient(IssuerConfig{
		Endpoint: srv.URL,
		Ident:    "ident",
		Secret:   "secret",
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewIssuerClient: %v", err)
	}
	return c
}

func TestICEServers_IssuerSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method=%s, want PUT", r.Method)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "ident" || pass != "secret" {
			t.Errorf("basic auth: %q/%q ok=%v", user, pass, ok)
		}
		io.WriteString(w, `{"v":{"iceServers":{"urls":["turn:turn.example.com:80?transport=udp"],"username":"u1","credential":"c1"}},"s":"ok"}`)
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{
		STUN:   testSTUN,
		Issuer: issuerFor(t, srv),
		Logger: testLogger(),
	})

	servers := p.ICEServers(context.Background())
	if len(servers) != 2 {
		t.Fatalf("servers: got %d, want 2 (%v)", len(servers), servers)
	}
	if servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("stun must come first: %v", servers[0])
	}
	if servers[1].Username != "u1" || servers[1].Credential != "c1" {
		t.Fatalf("relay credentials: %v", servers[1])
	}
}

func TestICEServers_CachedWithinTTL(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"v":{"iceServers":[{"urls":"turn:t.example.com:80","username":"u","credential":"c"}]},"s":"ok"}`)
	}))
	defer srv.Close()

	now := time.Unix(1000, 0)
	p := NewProvider(ProviderConfig{
		STUN:     testSTUN,
		Issuer:   issuerFor(t, srv),
		CacheTTL: time.Minute,
		Logger:   testLogger(),
		Now:      func() time.Time { return now },
	})

	p.ICEServers(context.Background())
	p.ICEServers(context.Background())
	if got := calls.Load(); got != 1 {
		t.Fatalf("issuer calls: got %d, want 1 (cache reuse)", got)
	}

	now = now.Add(2 * time.Minute)
	p.ICEServers(context.Background())
	if got := calls.Load(); got != 2 {
		t.Fatalf("issuer calls after TTL expiry: got %d, want 2", got)
	}
}

func TestICEServers_MalformedResponseFallsBackToSTUNOnly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"unexpected`)
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{
		STUN:   testSTUN,
		Issuer: issuerFor(t, srv),
		Logger: testLogger(),
	})

	servers := p.ICEServers(context.Background())
	if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("expected stun only, got %v", servers)
	}
}

func TestICEServers_IssuerErrorStatusFallsBackToStatic(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"v":"unauthorized","s":"error"}`)
	}))
	defer srv.Close()

	static := []webrtc.ICEServer{{
		URLs:       []string{"turn:fallback.example.com:3478"},
		Username:   "static-user",
		Credential: "static-pass",
	}}
	p := NewProvider(ProviderConfig{
		STUN:       testSTUN,
		StaticTURN: static,
		Issuer:     issuerFor(t, srv),
		Logger:     testLogger(),
	})

	servers := p.ICEServers(context.Background())
	if len(servers) != 2 {
		t.Fatalf("servers: got %v", servers)
	}
	if servers[1].Username != "static-user" {
		t.Fatalf("expected static fallback, got %v", servers[1])
	}
}

func TestICEServers_TimeoutAbandonsButLateResultPopulatesCache(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, `{"v":{"iceServers":[{"urls":"turn:slow.example.com:80","username":"u","credential":"c"}]},"s":"ok"}`)
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{
		STUN:   testSTUN,
		Issuer: issuerFor(t, srv),
		Logger: testLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	servers := p.ICEServers(ctx)
	if len(servers) != 1 {
		t.Fatalf("timed-out refresh must degrade to stun only, got %v", servers)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if servers, ok := p.cachedServers(); ok {
			if servers[0].Username != "u" {
				t.Fatalf("cached servers: %v", servers)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("late issuer result never populated the cache")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The next caller reuses the late result without another fetch.
	servers = p.ICEServers(context.Background())
	if len(servers) != 2 || servers[1].Username != "u" {
		t.Fatalf("expected cached relay entry, got %v", servers)
	}
}

func TestICEServers_LocalRESTFallback(t *testing.T) {
	t.Parallel()

	gen, err := turnrest.NewGenerator(turnrest.GeneratorConfig{
		SharedSecret:   "secret",
		TTLSeconds:     600,
		UsernamePrefix: "duocall",
		Now:            func() time.Time { return time.Unix(1000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	p := NewProvider(ProviderConfig{
		STUN:     testSTUN,
		REST:     gen,
		TURNURLs: []string{"turn:turn.example.com:3478"},
		Logger:   testLogger(),
	})

	servers := p.ICEServers(context.Background())
	if len(servers) != 2 {
		t.Fatalf("servers: %v", servers)
	}
	if servers[1].Username == "" || servers[1].Credential == nil {
		t.Fatalf("expected minted credentials, got %v", servers[1])
	}
}

func TestICEServers_NoRelaySourceYieldsSTUNOnly(t *testing.T) {
	t.Parallel()

	p := NewProvider(ProviderConfig{STUN: testSTUN, Logger: testLogger()})
	servers := p.ICEServers(context.Background())
	if len(servers) != 1 {
		t.Fatalf("servers: %v", servers)
	}
}
