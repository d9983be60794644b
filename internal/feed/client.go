// Package feed implements the market-data collaborator: a broker REST API
// for session login and candle history, and a WebSocket stream for live
// candle updates. It satisfies model.MarketDataSource.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"trendcore/internal/model"
)

// Config holds broker endpoints and credentials.
type Config struct {
	BaseURL string // REST root, e.g. "https://api.broker.example"
	WSURL   string // stream root, e.g. "wss://stream.broker.example"

	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string // base32 secret; a fresh code is generated per login

	Timeout time.Duration // REST timeout, default 10s
}

// Client is the REST side of the feed: login plus candle history.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger

	hooks streamHooks

	mu          sync.RWMutex
	accessToken string
	feedToken   string
}

// NewClient creates a REST client. Credentials are not checked until Login.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        slog.Default().With("component", "feed"),
	}
}

type loginRequest struct {
	ClientCode string `json:"client_code"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type loginResponse struct {
	Status      bool   `json:"status"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	FeedToken   string `json:"feed_token"`
}

// Login generates a fresh TOTP code and opens a session, storing the access
// and feed tokens for subsequent calls.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("feed login: totp: %w", err)
	}

	body, _ := json.Marshal(loginRequest{
		ClientCode: c.cfg.ClientCode,
		Password:   c.cfg.Password,
		TOTP:       code,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("feed login: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("feed login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed login: unexpected status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("feed login: decode: %w", err)
	}
	if !lr.Status {
		return fmt.Errorf("feed login rejected: %s", lr.Message)
	}

	c.mu.Lock()
	c.accessToken = lr.AccessToken
	c.feedToken = lr.FeedToken
	c.mu.Unlock()

	c.log.Info("session established", "client", c.cfg.ClientCode)
	return nil
}

// FeedToken returns the stream authentication token obtained at login.
func (c *Client) FeedToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feedToken
}

// wireCandle is the broker's candle JSON shape.
type wireCandle struct {
	TS     int64   `json:"ts"` // Unix seconds of the candle open
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Final  bool    `json:"final"`
}

func (w wireCandle) toModel(symbol, interval string) model.Candle {
	return model.Candle{
		Symbol:   symbol,
		Interval: interval,
		TS:       time.Unix(w.TS, 0).UTC(),
		Open:     w.Open,
		High:     w.High,
		Low:      w.Low,
		Close:    w.Close,
		Volume:   w.Volume,
		Final:    w.Final,
	}
}

// GetHistoricalCandles fetches up to limit closed candles, oldest first.
func (c *Client) GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	url := c.cfg.BaseURL + "/api/v1/candles?symbol=" + symbol +
		"&interval=" + interval + "&limit=" + strconv.Itoa(limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed history: request: %w", err)
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	c.mu.RLock()
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed history: status %d: %s", resp.StatusCode, b)
	}

	var payload struct {
		Candles []wireCandle `json:"candles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("feed history: decode: %w", err)
	}

	candles := make([]model.Candle, 0, len(payload.Candles))
	for _, w := range payload.Candles {
		mc := w.toModel(symbol, interval)
		mc.Final = true // history endpoint returns closed candles only
		candles = append(candles, mc)
	}
	return candles, nil
}
