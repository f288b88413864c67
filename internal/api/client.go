package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/feed"
	"github.com/dgnsrekt/helpdesk-livefeed/internal/transport"
)

// Config configures an HTTPClient.
type Config struct {
	BaseURL string

	// SessionCookie is attached to every request as "name=value".
	SessionCookie string

	// CSRFToken is used verbatim when set; otherwise it is read from the
	// csrf-token meta tag of CSRFPage.
	CSRFToken string
	CSRFPage  string

	RatePerSecond int
	Timeout       time.Duration
	RetryCount    int
	RetryDelay    time.Duration
}

// HTTPClient talks to the helpdesk backend. It implements transport.Backend
// for the live feeds and issues the mutating actions of the page.
type HTTPClient struct {
	httpClient   *http.Client
	streamClient *http.Client
	dialer       *websocket.Dialer
	baseURL      *url.URL
	cfg          Config
	limiter      *rate.Limiter
	logger       *zap.Logger

	csrfMu sync.Mutex
	csrf   string
}

var _ transport.Backend = (*HTTPClient)(nil)

func NewClient(cfg Config, logger *zap.Logger) (*HTTPClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.CSRFPage == "" {
		cfg.CSRFPage = "/"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if cfg.SessionCookie != "" {
		name, value, ok := strings.Cut(cfg.SessionCookie, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("session cookie must be name=value")
		}
		jar.SetCookies(base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
	}

	rt := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
	}
	compressed := gzhttp.Transport(rt)

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: compressed,
			Timeout:   cfg.Timeout,
			Jar:       jar,
		},
		// Streams stay open indefinitely; no client timeout.
		streamClient: &http.Client{
			Transport: rt,
			Jar:       jar,
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			Jar:              jar,
		},
		baseURL: base,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond*2),
		logger:  logger,
		csrf:    cfg.CSRFToken,
	}, nil
}

// Resolve turns a path or URL into an absolute URL against the base URL.
func (c *HTTPClient) Resolve(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// Poll implements transport.Poller. Every failure wraps feed.ErrNetworkFailure.
func (c *HTTPClient) Poll(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", feed.ErrNetworkFailure, err)
	}

	target, err := c.Resolve(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrNetworkFailure, err)
	}
	c.logger.Debug("polling", zap.String("url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", feed.ErrNetworkFailure, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrNetworkFailure, err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if readErr != nil {
		return nil, fmt.Errorf("%w: reading body: %v", feed.ErrNetworkFailure, readErr)
	}
	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrNetworkFailure, err)
	}
	return body, nil
}

// OpenStream implements transport.StreamOpener.
func (c *HTTPClient) OpenStream(ctx context.Context, endpoint, lastEventID string) (io.ReadCloser, error) {
	target, err := c.Resolve(endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if err := checkResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	if mediaType(resp) != "text/event-stream" {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	c.logger.Debug("stream opened",
		zap.String("url", target),
		zap.String("lastEventID", lastEventID),
	)
	return resp.Body, nil
}

// DialWebSocket implements transport.Dialer.
func (c *HTTPClient) DialWebSocket(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	target, err := c.Resolve(endpoint)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}
	return conn, nil
}

// checkResponse maps HTTP status codes to package errors.
func checkResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuthFailed
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// The backend answers an expired session with a redirect to its HTML
	// login page.
	if mediaType(resp) == "text/html" && resp.Request != nil && resp.Request.Header.Get("Accept") != "text/html" {
		return fmt.Errorf("%w: received login page", ErrAuthFailed)
	}
	return nil
}

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// actionResponse is the JSON answer of the mutating endpoints.
type actionResponse struct {
	OK     bool           `json:"ok"`
	Error  string         `json:"error"`
	Counts map[string]int `json:"counts"`
}

func decodeAction(body []byte) (*actionResponse, error) {
	var ar actionResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !ar.OK {
		msg := ar.Error
		if msg == "" {
			msg = "ok=false"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return &ar, nil
}
