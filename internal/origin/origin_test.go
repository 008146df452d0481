package origin

import "testing"

func TestNormalizeHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		wantOrigin string
		wantHost   string
		wantOK     bool
	}{
		{"simple https", "https://app.example.com", "https://app.example.com", "app.example.com", true},
		{"uppercase host folded", "https://App.Example.COM", "https://app.example.com", "app.example.com", true},
		{"explicit default port stripped", "https://app.example.com:443", "https://app.example.com", "app.example.com", true},
		{"http default port stripped", "http://app.example.com:80", "http://app.example.com", "app.example.com", true},
		{"non-default port kept", "http://localhost:5173", "http://localhost:5173", "localhost:5173", true},
		{"ipv6 literal", "http://[::1]:3000", "http://[::1]:3000", "[::1]:3000", true},
		{"null origin", "null", "null", "", true},
		{"whitespace trimmed", "  https://a.example  ", "https://a.example", "a.example", true},
		{"empty", "", "", "", false},
		{"path rejected", "https://a.example/path", "", "", false},
		{"query rejected", "https://a.example?x=1", "", "", false},
		{"userinfo rejected", "https://user@a.example", "", "", false},
		{"ws scheme rejected", "ws://a.example", "", "", false},
		{"missing scheme", "a.example", "", "", false},
		{"port zero rejected", "https://a.example:0", "", "", false},
		{"bad port", "https://a.example:notaport", "", "", false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotOrigin, gotHost, ok := NormalizeHeader(tc.header)
			if ok != tc.wantOK {
				t.Fatalf("ok=%v, want %v", ok, tc.wantOK)
			}
			if gotOrigin != tc.wantOrigin || gotHost != tc.wantHost {
				t.Fatalf("got (%q, %q), want (%q, %q)", gotOrigin, gotHost, tc.wantOrigin, tc.wantHost)
			}
		})
	}
}

func TestIsAllowed_Allowlist(t *testing.T) {
	t.Parallel()

	allowed := []string{"https://app.example.com", "http://localhost:5173"}

	if !IsAllowed("https://app.example.com", "app.example.com", "irrelevant", allowed) {
		t.Fatal("listed origin must be allowed")
	}
	if IsAllowed("https://evil.example.com", "evil.example.com", "irrelevant", allowed) {
		t.Fatal("unlisted origin must be rejected")
	}
	if !IsAllowed("https://anything.example", "anything.example", "irrelevant", []string{"*"}) {
		t.Fatal("wildcard must allow any origin")
	}
	if IsAllowed("null", "", "irrelevant", allowed) {
		t.Fatal("null origin not in allowlist must be rejected")
	}
}

func TestIsAllowed_SameHostDefault(t *testing.T) {
	t.Parallel()

	if !IsAllowed("http://localhost:8080", "localhost:8080", "localhost:8080", nil) {
		t.Fatal("same host must be allowed")
	}
	if !IsAllowed("https://relay.example.com", "relay.example.com", "relay.example.com:443", nil) {
		t.Fatal("default port on request host must match")
	}
	if IsAllowed("http://localhost:8080", "localhost:8080", "localhost:9090", nil) {
		t.Fatal("different port must be rejected")
	}
	if IsAllowed("null", "", "localhost:8080", nil) {
		t.Fatal("null origin cannot match a host")
	}
}

func TestSplitHostPort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      string
		hostname string
		port     string
		ok       bool
	}{
		{"example.com", "example.com", "", true},
		{"example.com:8080", "example.com", "8080", true},
		{"[::1]", "::1", "", true},
		{"[::1]:443", "::1", "443", true},
		{"[::1]:", "", "", false},
		{"[::1", "", "", false},
		{"::1:443", "", "", false},
		{":8080", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range tests {
		hostname, port, ok := splitHostPort(tc.raw)
		if hostname != tc.hostname || port != tc.port || ok != tc.ok {
			t.Errorf("splitHostPort(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.raw, hostname, port, ok, tc.hostname, tc.port, tc.ok)
		}
	}
}
