package robotstate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxBodyBytes        = 1 << 20
	bodyExcerptLen      = 200
	defaultUserAgent    = "hexapod-server/0.1"
)

// StateFetcher is implemented by *Fetcher and by test doubles.
type StateFetcher interface {
	Fetch(ctx context.Context) (RobotState, error)
}

var _ StateFetcher = (*Fetcher)(nil)

type FetcherConfig struct {
	Endpoint           string
	AuthToken          string
	AuthHeader         string // empty or "Authorization" means bearer scheme
	Timeout            time.Duration
	PlaceholderMessage bool
	HTTPClient         *http.Client
}

// Fetcher issues single robot-state requests against one endpoint.
type Fetcher struct {
	endpoint   string
	authToken  string
	authHeader string
	timeout    time.Duration
	defaults   RobotState
	http       *http.Client
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		endpoint:   cfg.Endpoint,
		authToken:  cfg.AuthToken,
		authHeader: strings.TrimSpace(cfg.AuthHeader),
		timeout:    timeout,
		defaults:   Defaults(cfg.PlaceholderMessage),
		http:       client,
	}
}

// Fetch performs one request. Errors are always *FetchError.
func (f *Fetcher) Fetch(ctx context.Context) (RobotState, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return RobotState{}, networkError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", defaultUserAgent)
	f.authorize(req)

	resp, err := f.http.Do(req)
	if err != nil {
		return RobotState{}, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return RobotState{}, networkError(fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RobotState{}, httpError(resp.StatusCode, excerpt(body))
	}
	return Decode(body, f.defaults)
}

func (f *Fetcher) authorize(req *http.Request) {
	if f.authToken == "" {
		return
	}
	if f.authHeader == "" || strings.EqualFold(f.authHeader, "Authorization") {
		req.Header.Set("Authorization", "Bearer "+f.authToken)
		return
	}
	req.Header.Set(f.authHeader, f.authToken)
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodyExcerptLen {
		cut := bodyExcerptLen
		// back off to a rune boundary so the excerpt stays valid UTF-8
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}
