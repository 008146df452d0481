// Package turncred assembles the ICE server list handed to clients.
//
// Statically configured STUN servers always come first. Relay (TURN)
// credentials are resolved in order of preference: a cached unexpired set
// from the external issuer, a fresh issuer fetch, locally minted TURN REST
// credentials, then the static TURN fallback. A failed or timed-out refresh
// degrades to the next fallback; it is never surfaced to the caller.
package turncred

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/duocall/duocall/internal/metrics"
	"github.com/duocall/duocall/internal/turnrest"
)

// DefaultCacheTTL is how long issuer credentials are reused when the issuer
// does not dictate a lifetime via config.
const DefaultCacheTTL = 5 * time.Minute

type Provider struct {
	log *slog.Logger
	met *metrics.Metrics

	stun       []webrtc.ICEServer
	staticTURN []webrtc.ICEServer

	issuer   *IssuerClient
	cacheTTL time.Duration

	rest     *turnrest.Generator
	turnURLs []string

	now func() time.Time

	mu        sync.Mutex
	cached    []webrtc.ICEServer
	fetchedAt time.Time
}

type ProviderConfig struct {
	// STUN servers are always returned first.
	STUN []webrtc.ICEServer
	// StaticTURN is the last-resort relay configuration.
	StaticTURN []webrtc.ICEServer

	// Issuer is the external credential issuer; nil disables issuer fetches.
	Issuer *IssuerClient
	// CacheTTL bounds reuse of issuer credentials. <= 0 means DefaultCacheTTL.
	CacheTTL time.Duration

	// REST mints coturn ephemeral credentials locally for TURNURLs; nil
	// disables this fallback.
	REST     *turnrest.Generator
	TURNURLs []string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{
		log:        cfg.Logger,
		met:        cfg.Metrics,
		stun:       cfg.STUN,
		staticTURN: cfg.StaticTURN,
		issuer:     cfg.Issuer,
		cacheTTL:   cfg.CacheTTL,
		rest:       cfg.REST,
		turnURLs:   cfg.TURNURLs,
		now:        cfg.Now,
	}
}

// ICEServers returns the ordered server list for a client. It never fails;
// when no relay source is available the list contains only the STUN servers.
func (p *Provider) ICEServers(ctx context.Context) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(p.stun)+2)
	out = append(out, p.stun...)
	return append(out, p.relayServers(ctx)...)
}

func (p *Provider) relayServers(ctx context.Context) []webrtc.ICEServer {
	if p.issuer != nil {
		if servers, ok := p.cachedServers(); ok {
			return servers
		}
		if servers, ok := p.refresh(ctx); ok {
			return servers
		}
		p.met.Inc(metrics.EventCredentialFallback)
	}

	if p.rest != nil && len(p.turnURLs) > 0 {
		creds, err := p.rest.GenerateRandom()
		if err != nil {
			p.log.Warn("turn rest credential generation failed", "err", err)
		} else {
			return []webrtc.ICEServer{{
				URLs:       p.turnURLs,
				Username:   creds.Username,
				Credential: creds.Credential,
			}}
		}
	}

	return p.staticTURN
}

func (p *Provider) cachedServers() ([]webrtc.ICEServer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil || p.now().Sub(p.fetchedAt) >= p.cacheTTL {
		return nil, false
	}
	return p.cached, true
}

// refresh fetches a new credential set from the issuer. The fetch runs in its
// own goroutine: if it outlives ctx the current caller falls back, but a late
// success still replaces the cache for subsequent callers.
func (p *Provider) refresh(ctx context.Context) ([]webrtc.ICEServer, bool) {
	type result struct {
		servers []webrtc.ICEServer
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		servers, err := p.issuer.Fetch(context.WithoutCancel(ctx))
		if err == nil {
			p.storeCache(servers)
		}
		ch <- result{servers, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			p.log.Warn("turn credential refresh failed", "err", res.err)
			return nil, false
		}
		p.met.Inc(metrics.EventCredentialRefresh)
		return res.servers, true
	case <-ctx.Done():
		p.log.Warn("turn credential refresh abandoned", "err", ctx.Err())
		return nil, false
	}
}

func (p *Provider) storeCache(servers []webrtc.ICEServer) {
	p.mu.Lock()
	p.cached = servers
	p.fetchedAt = p.now()
	p.mu.Unlock()
}
