// Package google exports monthly summaries to Google Sheets.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
	ports "aetherflow/internal/sheets"
)

const defaultSheetBase = "Footprint"

// Exporter writes one row per owner and month into "<year> <base>" sheets.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
}

var _ ports.SummaryExporter = (*Exporter)(nil)

// NewFromEnv creates an exporter from environment variables.
// Required: GOOGLE_SPREADSHEET_ID and service account credentials.
// Optional: GOOGLE_SHEET_NAME (default "Footprint").
func NewFromEnv(ctx context.Context) (*Exporter, error) {
	return Open(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), os.Getenv("GOOGLE_SHEET_NAME"))
}

// Open creates an exporter for spreadsheetID using service account
// credentials found in the environment.
func Open(ctx context.Context, spreadsheetID, sheetBase string) (*Exporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	credentials, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return New(svc, spreadsheetID, sheetBase), nil
}

// New wraps an existing service.
func New(svc *gsheet.Service, spreadsheetID, sheetBase string) *Exporter {
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = defaultSheetBase
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		logger:        log.Default(log.ComponentSheets),
	}
}

// credentialsFromEnv reads GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func credentialsFromEnv() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// ExportSummaries upserts the owner's rows, one sheet per calendar year.
func (e *Exporter) ExportSummaries(ctx context.Context, ownerID string, summaries []core.MonthlySummary) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	byYear := make(map[int][]core.MonthlySummary)
	for _, s := range summaries {
		byYear[s.Year] = append(byYear[s.Year], s)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		if err := e.exportYear(ctx, ownerID, year, byYear[year]); err != nil {
			return err
		}
	}

	e.logger.InfoContext(ctx, "Summaries exported to Google Sheets",
		log.FieldOwnerID, ownerID,
		log.FieldMonths, len(summaries))
	return nil
}

func (e *Exporter) exportYear(ctx context.Context, ownerID string, year int, summaries []core.MonthlySummary) error {
	sheet := yearPrefixedName(e.sheetBase, year)

	resp, err := e.svc.Spreadsheets.Values.Get(e.spreadsheetID, sheet+"!A:C").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	plan := planWrites(resp.Values, ownerID, Rows(ownerID, summaries))

	if len(plan.updates) > 0 {
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED"}
		for _, u := range plan.updates {
			req.Data = append(req.Data, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:I%d", sheet, u.row, u.row),
				Values: [][]interface{}{u.values},
			})
		}
		if _, err := e.svc.Spreadsheets.Values.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("update rows in %q: %w", sheet, err)
		}
	}

	if len(plan.appends) > 0 {
		vr := &gsheet.ValueRange{Values: plan.appends}
		_, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, sheet+"!A:I", vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append rows to %q: %w", sheet, err)
		}
	}
	return nil
}

// Rows renders summaries as sheet rows in Header order.
func Rows(ownerID string, summaries []core.MonthlySummary) [][]interface{} {
	out := make([][]interface{}, 0, len(summaries))
	for _, s := range summaries {
		row := []interface{}{ownerID, s.Year, s.Label, round2(s.EmissionsTotal)}
		for _, g := range emissions.Groups() {
			b, _ := s.Breakdown(g)
			row = append(row, round2(b.Emissions))
		}
		row = append(row, s.TransactionCount)
		out = append(out, row)
	}
	return out
}

type rowUpdate struct {
	row    int // 1-based sheet row
	values []interface{}
}

type writePlan struct {
	updates []rowUpdate
	appends [][]interface{}
}

// planWrites matches rows against existing (owner, year, month) keys read
// from columns A:C. Matches are rewritten in place, the rest appended. An
// empty sheet gets the header first.
func planWrites(existing [][]interface{}, ownerID string, rows [][]interface{}) writePlan {
	var plan writePlan
	if len(existing) == 0 {
		header := make([]interface{}, len(ports.Header))
		for i, h := range ports.Header {
			header[i] = h
		}
		plan.appends = append(plan.appends, header)
	}

	index := make(map[string]int)
	for i, r := range existing {
		cells := toStrings(r)
		if len(cells) < 3 || cells[0] != ownerID {
			continue
		}
		index[rowKey(cells[0], cells[1], cells[2])] = i + 1
	}

	for _, r := range rows {
		key := rowKey(fmt.Sprint(r[0]), fmt.Sprint(r[1]), fmt.Sprint(r[2]))
		if n, ok := index[key]; ok {
			plan.updates = append(plan.updates, rowUpdate{row: n, values: r})
			continue
		}
		plan.appends = append(plan.appends, r)
	}
	return plan
}

func rowKey(owner, year, month string) string {
	return owner + "|" + year + "|" + strings.ToLower(month)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func round2(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return f
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
