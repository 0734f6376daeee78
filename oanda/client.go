// Package oanda adapts the OANDA v20 REST API to the riskguard collaborator
// interfaces: account snapshots, open trades, stop modification, candles and
// closed trade outcomes.
package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/market"
)

const (
	// PracticeURL is the URL for OANDA's practice/demo environment
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is the URL for OANDA's live trading environment
	LiveURL = "https://api-fxtrade.oanda.com"

	maxCandles = 5000
)

// BaseURL maps an environment name to its REST endpoint.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "practice", "demo":
		return PracticeURL, nil
	case "live":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

// APIError is a non 2xx answer from the REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oanda API error (status %d): %s", e.Status, e.Message)
}

type Options struct {
	BaseURL   string
	Token     string
	AccountID string
	// Instruments supplies the display precision stop prices are sent with.
	Instruments market.InstrumentSource
	HTTP        *http.Client
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Client represents an OANDA API client bound to one account.
type Client struct {
	baseURL     string
	token       string
	accountID   string
	instruments market.InstrumentSource
	httpClient  *http.Client
	log         *zap.Logger
	now         func() time.Time

	mu         sync.Mutex
	seenClosed map[string]bool
}

func NewClient(o Options) (*Client, error) {
	if o.Token == "" {
		return nil, errors.New("oanda: token is required")
	}
	if o.AccountID == "" {
		return nil, errors.New("oanda: account id is required")
	}
	if o.BaseURL == "" {
		o.BaseURL = PracticeURL
	}
	if o.HTTP == nil {
		o.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Instruments == nil {
		o.Instruments = market.DefaultCatalog()
	}
	return &Client{
		baseURL:     strings.TrimRight(o.BaseURL, "/"),
		token:       o.Token,
		accountID:   o.AccountID,
		instruments: o.Instruments,
		httpClient:  o.HTTP,
		log:         o.Logger.Named("oanda"),
		now:         o.Clock,
	}, nil
}

// do sends one request and decodes a JSON answer into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var msg struct {
			ErrorMessage string `json:"errorMessage"`
		}
		if json.Unmarshal(b, &msg) != nil || msg.ErrorMessage == "" {
			msg.ErrorMessage = strings.TrimSpace(string(b))
		}
		return &APIError{Status: resp.StatusCode, Message: msg.ErrorMessage}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) accountPath(parts ...string) string {
	return "/v3/accounts/" + url.PathEscape(c.accountID) + "/" + strings.Join(parts, "/")
}

// Granularity maps a timeframe to the OANDA candle granularity.
func Granularity(tf market.Timeframe) (string, error) {
	switch tf {
	case market.M1, market.M5, market.M15, market.M30, market.H1, market.H4:
		return string(tf), nil
	case market.D1:
		return "D", nil
	case market.W1:
		return "W", nil
	case market.MN1:
		return "M", nil
	default:
		return "", fmt.Errorf("no OANDA granularity for timeframe %q", tf)
	}
}

// candleData represents the OHLC data in the API response
type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool       `json:"complete"`
	Volume   int        `json:"volume"`
	Time     time.Time  `json:"time"`
	Mid      candleData `json:"mid"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// Candles fetches the last count complete mid candles, oldest first.
func (c *Client) Candles(ctx context.Context, symbol string, tf market.Timeframe, count int) (market.CandleSeries, error) {
	if symbol == "" {
		return market.CandleSeries{}, errors.New("instrument is required")
	}
	if count <= 0 || count > maxCandles {
		return market.CandleSeries{}, fmt.Errorf("count must be in 1..%d, got %d", maxCandles, count)
	}
	gran, err := Granularity(tf)
	if err != nil {
		return market.CandleSeries{}, err
	}

	q := url.Values{}
	q.Set("price", "M")
	q.Set("granularity", gran)
	// one more than asked for, the running candle is dropped
	q.Set("count", strconv.Itoa(min(count+1, maxCandles)))

	var resp candlesResponse
	if err := c.do(ctx, http.MethodGet, "/v3/instruments/"+url.PathEscape(symbol)+"/candles", q, nil, &resp); err != nil {
		return market.CandleSeries{}, fmt.Errorf("candles %s: %w", symbol, err)
	}

	out := market.CandleSeries{Symbol: symbol, Timeframe: tf, Candles: make([]market.Candle, 0, len(resp.Candles))}
	for _, ac := range resp.Candles {
		if !ac.Complete {
			continue
		}
		var v [4]float64
		for i, s := range []string{ac.Mid.O, ac.Mid.H, ac.Mid.L, ac.Mid.C} {
			if v[i], err = num(s); err != nil {
				return market.CandleSeries{}, fmt.Errorf("candle %s: %w", ac.Time.Format(time.RFC3339), err)
			}
		}
		out.Candles = append(out.Candles, market.Candle{
			Time:   ac.Time,
			Open:   v[0],
			High:   v[1],
			Low:    v[2],
			Close:  v[3],
			Volume: float64(ac.Volume),
		})
	}
	if n := len(out.Candles); n > count {
		out.Candles = out.Candles[n-count:]
	}
	return out, nil
}

// num parses an API decimal string; empty is zero.
func num(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return f, nil
}
