// Package backend is a client for the dashboard backend's market data API.
// It handles the session login (password plus TOTP), bearer token
// renewal on expiry, and request/response envelopes.
//
// Usage example:
//
//	c := backend.New(backend.Config{BaseURL: "http://localhost:8000", User: "ops", Password: "...", TOTPSecret: "..."})
//	if err := c.Login(ctx); err != nil { log.Fatal(err) }
//	bars, err := c.FetchPriceHistory(ctx, "AAPL", from, to, model.TF1h)
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"marketchart/internal/model"
)

// ErrSessionExpired is returned when the backend rejects the bearer token
// and logging in again did not help.
var ErrSessionExpired = errors.New("backend: session expired")

// Config configures the client.
type Config struct {
	BaseURL    string
	User       string
	Password   string
	TOTPSecret string        // base32; empty when the account has no second factor
	Timeout    time.Duration // default: 10s
	Debug      bool

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	// Now is the clock used for TOTP codes.
	Now func() time.Time
}

// Client talks to the dashboard backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	user       string
	password   string
	totpSecret string
	debug      bool
	now        func() time.Time
	httpClient *http.Client

	mu    sync.Mutex
	token string

	// Optional callback when the backend reports an expired session
	SessionExpiryHook func()
}

var routes = map[string]string{
	"api.login":  "/api/v1/auth/login",
	"api.logout": "/api/v1/auth/logout",
	"api.prices": "/api/v1/market/price_history",
	"api.events": "/api/v1/market/events",
}

// envelope is the backend's response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// New creates a client. It does not log in.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		user:       cfg.User,
		password:   cfg.Password,
		totpSecret: cfg.TOTPSecret,
		debug:      cfg.Debug,
		now:        cfg.Now,
		httpClient: hc,
	}
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) setAccessToken(t string) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

// Login starts a session. The TOTP code is generated from the configured
// secret at call time.
func (c *Client) Login(ctx context.Context) error {
	params := map[string]any{"username": c.user, "password": c.password}
	if c.totpSecret != "" {
		code, err := totp.GenerateCode(c.totpSecret, c.now())
		if err != nil {
			return fmt.Errorf("generate totp: %w", err)
		}
		params["totp"] = code
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "api.login", params, &data); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if data.Token == "" {
		return errors.New("login: no token in response")
	}
	c.setAccessToken(data.Token)
	log.Printf("[backend] session started for %s", c.user)
	return nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doRequest(ctx, http.MethodPost, "api.logout", nil, nil)
	c.setAccessToken("")
	return err
}

// wireBar is the backend's bar shape.
type wireBar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// FetchPriceHistory implements model.PriceSource. The result is sorted by
// time with duplicate times collapsed to the last bar received.
func (c *Client) FetchPriceHistory(ctx context.Context, ticker string, from, to int64, tf model.Timeframe) ([]model.PricePoint, error) {
	params := map[string]any{
		"ticker":   ticker,
		"from":     from,
		"to":       to,
		"interval": string(tf),
	}
	var raw []wireBar
	if err := c.call(ctx, http.MethodGet, "api.prices", params, &raw); err != nil {
		return nil, fmt.Errorf("fetch price history %s/%s: %w", ticker, tf, err)
	}

	bars := make([]model.PricePoint, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, model.PricePoint{
			Time:   b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return normalizeBars(bars), nil
}

// normalizeBars sorts by time and keeps the last bar for each time.
func normalizeBars(bars []model.PricePoint) []model.PricePoint {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Time == b.Time {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// FetchEvents implements model.EventSource.
func (c *Client) FetchEvents(ctx context.Context, ticker string, from, to int64) ([]model.EventMarker, error) {
	params := map[string]any{"ticker": ticker, "from": from, "to": to}
	var events []model.EventMarker
	if err := c.call(ctx, http.MethodGet, "api.events", params, &events); err != nil {
		return nil, fmt.Errorf("fetch events %s: %w", ticker, err)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	return events, nil
}

// call is doRequest with one re-login when the session has expired.
func (c *Client) call(ctx context.Context, method, route string, params map[string]any, out any) error {
	err := c.doRequest(ctx, method, route, params, out)
	if !errors.Is(err, ErrSessionExpired) || c.user == "" {
		return err
	}
	if c.SessionExpiryHook != nil {
		c.SessionExpiryHook()
	}
	if lerr := c.Login(ctx); lerr != nil {
		return errors.Join(err, lerr)
	}
	return c.doRequest(ctx, method, route, params, out)
}

func (c *Client) buildURL(route string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	return c.baseURL + uri, nil
}

func (c *Client) doRequest(ctx context.Context, method, route string, params map[string]any, out any) error {
	reqURL, err := c.buildURL(route)
	if err != nil {
		return err
	}

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, toString(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, _ := json.Marshal(params)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t := c.accessToken(); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}

	if c.debug {
		log.Printf("[backend] request: %s %s", method, reqURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if c.debug {
		log.Printf("[backend] response: code=%d bytes=%d", resp.StatusCode, len(raw))
	}

	var env envelope
	jerr := json.Unmarshal(raw, &env)
	// A 401 may come from a proxy with a non-JSON body.
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrSessionExpired, env.Message)
	}
	if jerr != nil {
		return fmt.Errorf("status %d: couldn't parse JSON response: %w", resp.StatusCode, jerr)
	}
	if env.ErrorType == "TokenException" {
		return fmt.Errorf("%w: %s", ErrSessionExpired, env.Message)
	}
	if env.ErrorType != "" {
		return fmt.Errorf("%s: %s", env.ErrorType, env.Message)
	}
	if resp.StatusCode >= 400 || !env.Status {
		return fmt.Errorf("status %d: %s", resp.StatusCode, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", route, err)
	}
	return nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
