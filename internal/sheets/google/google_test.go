package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestCredentialsFromFile(t *testing.T) {
	path := t.TempDir() + "/sa.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600))
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)

	b, err := credentialsFromEnv()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(b))
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"Footprint", "2024 Footprint"},
		{" Footprint ", "2024 Footprint"},
		{"2023 Footprint", "2023 Footprint"},
		{"1800 Footprint", "2024 1800 Footprint"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, yearPrefixedName(tt.base, 2024), tt.base)
	}
}

func summary(year int, month time.Month, total float64) core.MonthlySummary {
	return core.MonthlySummary{
		OwnerID: "u1", Year: year, Month: month, Label: month.String(),
		EmissionsTotal: total, TransactionCount: 2,
		Groups: []core.GroupBreakdown{
			{Group: emissions.Food, Emissions: total / 3},
			{Group: emissions.Transport, Emissions: total * 2 / 3},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows("u1", []core.MonthlySummary{summary(2024, time.October, 10)})
	require.Len(t, rows, 1)
	assert.Equal(t, []interface{}{"u1", 2024, "October", 10.0, 3.33, 0.0, 0.0, 6.67, 2}, rows[0])
}

func TestPlanWrites(t *testing.T) {
	rows := Rows("u1", []core.MonthlySummary{summary(2024, time.October, 10), summary(2024, time.September, 5)})

	t.Run("empty sheet gets header", func(t *testing.T) {
		plan := planWrites(nil, "u1", rows)
		assert.Empty(t, plan.updates)
		require.Len(t, plan.appends, 3)
		assert.Equal(t, "Owner", plan.appends[0][0])
	})

	t.Run("existing rows are updated in place", func(t *testing.T) {
		existing := [][]interface{}{
			{"Owner", "Year", "Month"},
			{"u2", "2024", "October"},
			{"u1", "2024", "october"},
		}
		plan := planWrites(existing, "u1", rows)
		require.Len(t, plan.updates, 1)
		assert.Equal(t, 3, plan.updates[0].row)
		require.Len(t, plan.appends, 1)
		assert.Equal(t, "September", plan.appends[0][2])
	})
}

type fakeSheets struct {
	mu       sync.Mutex
	existing [][]interface{}
	requests []string
	bodies   []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.existing})
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func TestExportSummaries(t *testing.T) {
	fake := &fakeSheets{existing: [][]interface{}{
		{"Owner", "Year", "Month"},
		{"u1", "2024", "October"},
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)

	exp := New(svc, "sheet-id", "")
	exp.logger = log.Discard()

	err = exp.ExportSummaries(context.Background(), "u1", []core.MonthlySummary{
		summary(2024, time.October, 10),
		summary(2024, time.September, 5),
	})
	require.NoError(t, err)

	require.Len(t, fake.requests, 3)
	assert.True(t, strings.HasPrefix(fake.requests[0], "GET /v4/spreadsheets/sheet-id/values/2024 Footprint!A:C"), fake.requests[0])
	assert.Contains(t, fake.requests[1], "values:batchUpdate")
	assert.Contains(t, fake.bodies[1], `2024 Footprint!A2:I2`)
	assert.Contains(t, fake.requests[2], ":append")
	assert.Contains(t, fake.bodies[2], "September")
}

func TestExportSummariesWithoutService(t *testing.T) {
	err := (&Exporter{}).ExportSummaries(context.Background(), "u1", nil)
	assert.Error(t, err)
}
