package connectearth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
	"aetherflow/internal/resilience"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveAPICall(endpoint, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, endpoint+":"+outcome)
}

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	cfg.RetryDelay = func(int) time.Duration { return 0 }
	return New(cfg, append([]Option{WithLogger(log.Discard())}, opts...)...)
}

func TestCalculateTransaction(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("accept"))
		assert.Equal(t, "application/json", r.Header.Get("content-type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"kg_of_CO2e_emissions": 12.5, "mt_of_CO2e_emissions": 0.0125, "similar_to": ["driving 50km in a car"]}`))
	}, Config{})

	res, err := c.CalculateTransaction(context.Background(), TransactionRequest{
		Name:     "Coles",
		Category: emissions.Groceries,
		Price:    core.Money{Cents: 4250},
		Date:     time.Date(2024, 10, 3, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.InDelta(t, 12.5, res.KgCO2e, 1e-9)
	assert.InDelta(t, 0.0125, res.MtCO2e, 1e-9)
	assert.Equal(t, []string{"driving 50km in a car"}, res.SimilarTo)

	assert.Equal(t, "AUD", got["currencyISO"])
	assert.Equal(t, "mcc", got["categoryType"])
	assert.Equal(t, "5411", got["categoryValue"])
	assert.Equal(t, "Coles", got["description"])
	assert.Equal(t, "Coles", got["merchant"])
	assert.InDelta(t, 42.5, got["price"], 1e-9)
	assert.Equal(t, "2024-10-03", got["transactionDate"])
	assert.Equal(t, "AU", got["geo"])
	assert.Equal(t, "Groceries", got["group"])
	assert.NotEmpty(t, got["transactionId"])
}

func TestCalculateTransactionUnknownCategory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, Config{})

	_, err := c.CalculateTransaction(context.Background(), TransactionRequest{Name: "x", Category: "Pets"})
	assert.ErrorIs(t, err, core.ErrUnknownCategory)
}

func TestCalculateMetrics(t *testing.T) {
	var got piePayload
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charts/pie", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"emissions_total": 340,
			"transaction_count": 3,
			"equivalents": ["This is equivalent to the emissions of 2 flights"],
			"groups": [
				{"group": "Groceries", "result": {"emissions": 30, "count": 1, "fraction_of_total": 0.09}},
				{"group": "5541", "result": {"emissions": 300, "count": 1, "fraction_of_total": 0.88}},
				{"group": "Pets", "result": {"emissions": 10, "count": 1, "fraction_of_total": 0.03}}
			]
		}`))
	}, Config{Currency: "EUR", Geo: "DE"})

	txns := []core.Transaction{
		{Category: emissions.Groceries, Price: core.Money{Cents: 1000}},
		{Category: emissions.Fuel, Price: core.Money{Cents: 8000}},
	}
	res, err := c.CalculateMetrics(context.Background(), txns)
	require.NoError(t, err)

	assert.Equal(t, "DE", got.Geo)
	assert.Equal(t, "PERSONAL", got.UserType)
	require.Len(t, got.Transactions, 2)
	assert.Equal(t, pieTransaction{CurrencyISO: "EUR", MCC: "5541", Price: 80, Geo: "DE", Group: "Fuel"}, got.Transactions[1])

	assert.InDelta(t, 340.0, res.EmissionsTotal, 1e-9)
	assert.Equal(t, 3, res.TransactionCount)
	require.Len(t, res.Groups, 3)
	assert.Equal(t, "Fuel", res.Groups[1].Category)
	assert.Equal(t, "Pets", res.Groups[2].Category)

	totals := emissions.Aggregate(res.Groups)
	assert.InDelta(t, 30.0, totals[emissions.Food].Emissions, 1e-9)
	assert.InDelta(t, 300.0, totals[emissions.Transport].Emissions, 1e-9)
}

func TestCalculateMetricsEmptyInput(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, Config{})

	res, err := c.CalculateMetrics(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	obs := &recordingObserver{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad mcc", http.StatusBadRequest)
	}, Config{MaxRetries: 3}, WithObserver(obs))

	_, err := c.CalculateMetrics(context.Background(), []core.Transaction{{Category: emissions.Fuel, Price: core.Money{Cents: 100}}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad mcc", apiErr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, resilience.StateClosed, c.Breaker().State())
	assert.Equal(t, []string{"/charts/pie:client_error"}, obs.outcomes)
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"emissions_total": 1, "transaction_count": 1, "groups": []}`))
	}, Config{MaxRetries: 2})

	res, err := c.CalculateMetrics(context.Background(), []core.Transaction{{Category: emissions.Fuel, Price: core.Money{Cents: 100}}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.EmissionsTotal, 1e-9)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCircuitOpensAndFailsFast(t *testing.T) {
	var calls int32
	obs := &recordingObserver{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Config{Breaker: resilience.BreakerConfig{MaxFailures: 2, OpenTimeout: time.Hour}}, WithObserver(obs))

	txns := []core.Transaction{{Category: emissions.Fuel, Price: core.Money{Cents: 100}}}
	for i := 0; i < 2; i++ {
		_, err := c.CalculateMetrics(context.Background(), txns)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, c.Breaker().State())

	_, err := c.CalculateMetrics(context.Background(), txns)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "/charts/pie:circuit_open", obs.outcomes[len(obs.outcomes)-1])
}

func TestDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}, Config{})

	_, err := c.CalculateMetrics(context.Background(), []core.Transaction{{Category: emissions.Fuel, Price: core.Money{Cents: 100}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
	assert.False(t, errors.Is(err, ErrCircuitOpen))
}
