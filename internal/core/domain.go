package core

import (
	"errors"
	"strings"
	"time"

	"aetherflow/internal/emissions"
)

type (
	// Transaction is a purchase whose footprint has been calculated.
	Transaction struct {
		ID          string
		OwnerID     string
		Name        string
		Category    emissions.FineCategory
		Price       Money
		KgCO2e      float64
		MtCO2e      float64
		Equivalents []string
		Timestamp   time.Time
	}

	// Submission is the raw user input for a new transaction.
	Submission struct {
		Name     string
		Price    string
		Category string
		Date     time.Time
	}

	// MetricsResult is the emissions service's breakdown for a batch of transactions.
	MetricsResult struct {
		EmissionsTotal   float64
		TransactionCount int
		Equivalents      []string
		Groups           []emissions.CategoryResult
	}

	// GroupBreakdown is one canonical group's share of a monthly summary.
	GroupBreakdown struct {
		Group           emissions.Group
		Emissions       float64
		Count           int
		FractionOfTotal float64
	}

	// MonthlySummary is the per-owner, per-calendar-month footprint.
	MonthlySummary struct {
		ID               string
		OwnerID          string
		EmissionsTotal   float64
		TransactionCount int
		Equivalents      []string
		Label            string // full month name, e.g. "October"
		Year             int
		Month            time.Month
		Start            time.Time
		Groups           []GroupBreakdown
	}

	// Challenge is a catalog entry describing a footprint reduction action.
	Challenge struct {
		Category    string `json:"category"`
		SubCategory string `json:"sub_category"`
		Action      string `json:"action"`
		Description string `json:"description"`
		Reference   string `json:"reference"`
	}

	// Diet tracks an owner taking on a challenge.
	Diet struct {
		ID         string
		OwnerID    string
		Challenge  string // challenge sub-category
		Timestamp  time.Time
		IsComplete bool
	}
)

var (
	ErrEmptyName       = errors.New("empty name")
	ErrNameTooLong     = errors.New("name too long (max 200 characters)")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrFutureDate      = errors.New("date is in the future")
	ErrZeroDate        = errors.New("date cannot be zero")
	ErrUnknownCategory = errors.New("unknown category")
	ErrEmptyOwner      = errors.New("empty owner id")
	ErrNegativeCO2e    = errors.New("emissions cannot be negative")
	ErrEmptyChallenge  = errors.New("empty challenge")
	ErrNotFound        = errors.New("not found")
)

// IsValidation reports whether err is a user input problem.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyName, ErrNameTooLong, ErrInvalidPrice, ErrFutureDate, ErrZeroDate,
		ErrUnknownCategory, ErrEmptyOwner, ErrNegativeCO2e, ErrEmptyChallenge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Validate checks the submission against now and returns the parsed price
// and category on success.
func (s Submission) Validate(now time.Time) (Money, emissions.FineCategory, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return Money{}, "", ErrEmptyName
	}
	if len(name) > 200 {
		return Money{}, "", ErrNameTooLong
	}
	price, err := ParsePrice(s.Price)
	if err != nil {
		return Money{}, "", err
	}
	if s.Date.IsZero() {
		return Money{}, "", ErrZeroDate
	}
	if s.Date.After(now) {
		return Money{}, "", ErrFutureDate
	}
	fc, ok := emissions.LookupFineCategory(s.Category)
	if !ok {
		return Money{}, "", ErrUnknownCategory
	}
	return price, fc, nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if err := t.Price.Validate(); err != nil {
		return err
	}
	if t.KgCO2e < 0 || t.MtCO2e < 0 {
		return ErrNegativeCO2e
	}
	if t.Timestamp.IsZero() {
		return ErrZeroDate
	}
	if _, ok := t.Category.Group(); !ok {
		return ErrUnknownCategory
	}
	return nil
}

// Breakdown returns the entry for g, if present.
func (m MonthlySummary) Breakdown(g emissions.Group) (GroupBreakdown, bool) {
	for _, b := range m.Groups {
		if b.Group == g {
			return b, true
		}
	}
	return GroupBreakdown{}, false
}

// Clone returns a copy that shares no slices with m.
func (m MonthlySummary) Clone() MonthlySummary {
	m.Groups = append([]GroupBreakdown(nil), m.Groups...)
	m.Equivalents = append([]string(nil), m.Equivalents...)
	return m
}

// CloneSummaries deep copies a summary slice. nil stays nil.
func CloneSummaries(in []MonthlySummary) []MonthlySummary {
	if in == nil {
		return nil
	}
	out := make([]MonthlySummary, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
