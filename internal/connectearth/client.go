// Package connectearth is a client for the Connect Earth carbon API.
package connectearth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
	"aetherflow/internal/resilience"
)

const (
	DefaultBaseURL  = "https://api.connect.earth"
	DefaultCurrency = "AUD"
	DefaultGeo      = "AU"
	DefaultTimeout  = 10 * time.Second

	endpointTransaction = "/transaction"
	endpointPie         = "/charts/pie"

	userTypePersonal = "PERSONAL"
	dateLayout       = "2006-01-02"
	maxErrorBody     = 4 << 10
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = resilience.ErrOpen

// ErrUpstream marks every failed call, whatever the cause.
var ErrUpstream = errors.New("emissions service call failed")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("connect earth: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Observer receives per-call outcomes. telemetry.Metrics implements it.
type Observer interface {
	ObserveAPICall(endpoint, outcome string, d time.Duration)
}

// Config holds client settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Currency   string
	Geo        string
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay overrides the 1s doubling backoff, mostly for tests.
	RetryDelay func(attempt int) time.Duration
	Breaker    resilience.BreakerConfig
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.Geo == "" {
		c.Geo = DefaultGeo
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay == nil {
		c.RetryDelay = resilience.ExponentialBackoff
	}
	return c
}

// Client talks to Connect Earth. It is safe for concurrent use.
type Client struct {
	cfg      Config
	http     *http.Client
	breaker  *resilience.Breaker
	logger   *log.Logger
	observer Observer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(c *Client) { c.logger = l } }

// WithObserver reports every call to o.
func WithObserver(o Observer) Option { return func(c *Client) { c.observer = o } }

// New creates a client.
func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	bc := cfg.Breaker
	if bc.IsFailure == nil {
		bc.IsFailure = isUpstreamFailure
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewBreaker("connectearth", bc),
		logger:  log.Default(log.ComponentConnectEarth),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Breaker exposes the client's circuit breaker for health reporting.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// TransactionRequest is a single purchase to price in CO2e.
type TransactionRequest struct {
	Name     string
	Category emissions.FineCategory
	Price    core.Money
	Date     time.Time
}

// TransactionResult is the footprint of a single purchase.
type TransactionResult struct {
	KgCO2e    float64  `json:"kg_of_CO2e_emissions"`
	MtCO2e    float64  `json:"mt_of_CO2e_emissions"`
	SimilarTo []string `json:"similar_to"`
}

type transactionPayload struct {
	CurrencyISO     string  `json:"currencyISO"`
	CategoryType    string  `json:"categoryType"`
	CategoryValue   string  `json:"categoryValue"`
	Description     string  `json:"description"`
	Merchant        string  `json:"merchant"`
	Price           float64 `json:"price"`
	TransactionID   string  `json:"transactionId"`
	TransactionDate string  `json:"transactionDate"`
	Geo             string  `json:"geo"`
	Group           string  `json:"group"`
}

// CalculateTransaction prices one purchase via POST /transaction.
func (c *Client) CalculateTransaction(ctx context.Context, req TransactionRequest) (*TransactionResult, error) {
	mcc := req.Category.MCC()
	if mcc == "" {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownCategory, req.Category)
	}
	payload := transactionPayload{
		CurrencyISO:     c.cfg.Currency,
		CategoryType:    "mcc",
		CategoryValue:   mcc,
		Description:     req.Name,
		Merchant:        req.Name,
		Price:           req.Price.Amount(),
		TransactionID:   uuid.NewString(),
		TransactionDate: req.Date.Format(dateLayout),
		Geo:             c.cfg.Geo,
		Group:           string(req.Category),
	}

	var out TransactionResult
	if err := c.post(ctx, endpointTransaction, payload, &out); err != nil {
		return nil, err
	}
	if out.KgCO2e < 0 || out.MtCO2e < 0 {
		return nil, fmt.Errorf("connect earth: %w", core.ErrNegativeCO2e)
	}
	return &out, nil
}

type pieTransaction struct {
	CurrencyISO string  `json:"currencyISO"`
	MCC         string  `json:"mcc"`
	Price       float64 `json:"price"`
	Geo         string  `json:"geo"`
	Group       string  `json:"group"`
}

type piePayload struct {
	Geo          string           `json:"geo"`
	UserType     string           `json:"userType"`
	Transactions []pieTransaction `json:"transactions"`
}

type pieResponse struct {
	EmissionsTotal   float64  `json:"emissions_total"`
	TransactionCount int      `json:"transaction_count"`
	Equivalents      []string `json:"equivalents"`
	Groups           []struct {
		Group  string `json:"group"`
		Result struct {
			Emissions       float64 `json:"emissions"`
			Count           int     `json:"count"`
			FractionOfTotal float64 `json:"fraction_of_total"`
		} `json:"result"`
	} `json:"groups"`
}

// CalculateMetrics returns the fine-category breakdown for txns via
// POST /charts/pie. An empty batch returns nil, nil without a request.
func (c *Client) CalculateMetrics(ctx context.Context, txns []core.Transaction) (*core.MetricsResult, error) {
	if len(txns) == 0 {
		return nil, nil
	}

	payload := piePayload{Geo: c.cfg.Geo, UserType: userTypePersonal}
	for _, t := range txns {
		payload.Transactions = append(payload.Transactions, pieTransaction{
			CurrencyISO: c.cfg.Currency,
			MCC:         t.Category.MCC(),
			Price:       t.Price.Amount(),
			Geo:         c.cfg.Geo,
			Group:       string(t.Category),
		})
	}

	var resp pieResponse
	if err := c.post(ctx, endpointPie, payload, &resp); err != nil {
		return nil, err
	}

	res := &core.MetricsResult{
		EmissionsTotal:   resp.EmissionsTotal,
		TransactionCount: resp.TransactionCount,
		Equivalents:      resp.Equivalents,
	}
	for _, g := range resp.Groups {
		res.Groups = append(res.Groups, emissions.CategoryResult{
			Category:        categoryName(g.Group),
			Emissions:       g.Result.Emissions,
			Count:           g.Result.Count,
			FractionOfTotal: g.Result.FractionOfTotal,
		})
	}
	return res, nil
}

// categoryName maps a group label that arrives as an MCC back to its fine
// category name. Anything else is passed through for the aggregator to resolve.
func categoryName(group string) string {
	if fc, ok := emissions.FineCategoryByMCC(strings.TrimSpace(group)); ok {
		return string(fc)
	}
	return group
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	start := time.Now()
	err = resilience.Retry(ctx, resilience.RetryConfig{
		Attempts:  c.cfg.MaxRetries + 1,
		Delay:     c.cfg.RetryDelay,
		Retryable: isRetryable,
	}, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.do(ctx, endpoint, body, out)
		})
	})
	c.observe(endpoint, err, time.Since(start))

	if err != nil {
		c.logger.WarnContext(ctx, "Connect Earth call failed",
			log.FieldOperation, endpoint,
			log.FieldError, err.Error(),
			"breaker_state", resilience.StateName(c.breaker.State()))
		return fmt.Errorf("connect earth %s: %w: %w", endpoint, ErrUpstream, err)
	}
	c.logger.DebugContext(ctx, "Connect Earth call succeeded",
		log.FieldOperation, endpoint,
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) observe(endpoint string, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveAPICall(endpoint, outcome(err), d)
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &apiErr) && !apiErr.Temporary():
		return "client_error"
	case errors.As(err, &apiErr):
		return "server_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "transport_error"
}

// isUpstreamFailure is what counts against the breaker: transport errors and
// 5xx/429, not 4xx answers.
func isUpstreamFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return resilience.IsConnectionError(err)
}

// IsUnavailable reports whether err means the API cannot currently be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
