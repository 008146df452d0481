package turncred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// IssuerClient fetches time-limited TURN credentials from an external issuer
// (Xirsys-style API: channel-scoped PUT with ident/secret basic auth).
type IssuerClient struct {
	endpoint string
	ident    string
	secret   string
	ttl      int64 // requested credential lifetime in seconds

	httpClient *http.Client
}

type IssuerConfig struct {
	// Endpoint is the issuer URL including the channel path,
	// e.g. https://global.xirsys.net/_turn/myapp.
	Endpoint string
	Ident    string
	Secret   string
	// TTLSeconds is the requested credential lifetime. <= 0 uses the issuer's
	// default.
	TTLSeconds int64
	// Timeout bounds each request; the room flow must never wait on the
	// issuer longer than this.
	Timeout time.Duration
}

func NewIssuerClient(cfg IssuerConfig) (*IssuerClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("issuer endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("issuer endpoint %q must be http(s)", endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &IssuerClient{
		endpoint:   endpoint,
		ident:      cfg.Ident,
		secret:     cfg.Secret,
		ttl:        cfg.TTLSeconds,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type issuerRequest struct {
	Format string `json:"format"`
	Expire int64  `json:"expire,omitempty"`
}

// issuerICEServers tolerates both a single server object and a list; issuers
// differ here.
type issuerICEServers []issuerICEServer

func (s *issuerICEServers) UnmarshalJSON(b []byte) error {
	var single issuerICEServer
	if err := json.Unmarshal(b, &single); err == nil {
		*s = issuerICEServers{single}
		return nil
	}
	var many []issuerICEServer
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

type issuerICEServer struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

type urlList []string

func (u *urlList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*u = urlList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*u = many
	return nil
}

type issuerResponse struct {
	Value struct {
		ICEServers issuerICEServers `json:"iceServers"`
	} `json:"v"`
	Status string `json:"s"`
}

// Fetch requests a fresh credential set. Any failure (transport, non-2xx,
// issuer-reported error, malformed or empty body) is returned as an error for
// the provider to swallow; nothing here is fatal to a caller.
func (c *IssuerClient) Fetch(ctx context.Context) ([]webrtc.ICEServer, error) {
	body, err := json.Marshal(issuerRequest{Format: "urls", Expire: c.ttl})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ident != "" || c.secret != "" {
		req.SetBasicAuth(c.ident, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("issuer returned status %d", resp.StatusCode)
	}

	var decoded issuerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode issuer response: %w", err)
	}
	if decoded.Status != "" && decoded.Status != "ok" {
		return nil, fmt.Errorf("issuer returned status %q", decoded.Status)
	}

	out := make([]webrtc.ICEServer, 0, len(decoded.Value.ICEServers))
	for _, server := range decoded.Value.ICEServers {
		urls := make([]string, 0, len(server.URLs))
		for _, raw := range server.URLs {
			if u := strings.TrimSpace(raw); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) == 0 {
			continue
		}
		ice := webrtc.ICEServer{URLs: urls, Username: server.Username}
		if server.Credential != "" {
			ice.Credential = server.Credential
		}
		out = append(out, ice)
	}
	if len(out) == 0 {
		return nil, errors.New("issuer returned no ice servers")
	}
	return out, nil
}
