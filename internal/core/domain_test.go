package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"aetherflow/internal/emissions"
)

func TestSubmissionValidate(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
	good := Submission{Name: "Flight", Price: "199.90", Category: "Airfare", Date: now.Add(-time.Hour)}

	price, fc, err := good.Validate(now)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if price.Cents != 19990 || fc != emissions.Airfare {
		t.Fatalf("unexpected parse: price=%d category=%q", price.Cents, fc)
	}

	cases := []struct {
		name string
		mut  func(s *Submission)
		want error
	}{
		{"empty name", func(s *Submission) { s.Name = "  " }, ErrEmptyName},
		{"long name", func(s *Submission) { s.Name = strings.Repeat("x", 201) }, ErrNameTooLong},
		{"bad price", func(s *Submission) { s.Price = "abc" }, ErrInvalidPrice},
		{"empty price", func(s *Submission) { s.Price = "" }, ErrInvalidPrice},
		{"future date", func(s *Submission) { s.Date = now.Add(time.Minute) }, ErrFutureDate},
		{"zero date", func(s *Submission) { s.Date = time.Time{} }, ErrZeroDate},
		{"unknown category", func(s *Submission) { s.Category = "Pets" }, ErrUnknownCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := good
			tc.mut(&s)
			_, _, err := s.Validate(now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		OwnerID:   "u1",
		Name:      "Jeans",
		Category:  emissions.ClothingCategory,
		Price:     Money{Cents: 8000},
		KgCO2e:    25,
		Timestamp: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		func() Transaction { b := good; b.OwnerID = ""; return b }(),
		func() Transaction { b := good; b.Name = ""; return b }(),
		func() Transaction { b := good; b.Price = Money{}; return b }(),
		func() Transaction { b := good; b.KgCO2e = -1; return b }(),
		func() Transaction { b := good; b.Timestamp = time.Time{}; return b }(),
		func() Transaction { b := good; b.Category = "Pets"; return b }(),
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMonthlySummaryBreakdown(t *testing.T) {
	m := MonthlySummary{Groups: []GroupBreakdown{{Group: emissions.Energy, Emissions: 3}}}
	if b, ok := m.Breakdown(emissions.Energy); !ok || b.Emissions != 3 {
		t.Fatalf("expected energy breakdown, got %+v ok=%v", b, ok)
	}
	if _, ok := m.Breakdown(emissions.Food); ok {
		t.Fatalf("expected missing food breakdown")
	}
}

func TestIsValidation(t *testing.T) {
	if IsValidation(ErrNotFound) {
		t.Fatalf("not found is not a validation error")
	}
	if !IsValidation(errors.Join(errors.New("ctx"), ErrInvalidPrice)) {
		t.Fatalf("wrapped price error should be validation")
	}
}

func TestCloneSummariesSharesNoSlices(t *testing.T) {
	src := []MonthlySummary{{
		Label:       "October",
		Equivalents: []string{"driving 10km"},
		Groups:      []GroupBreakdown{{Group: emissions.Food, Emissions: 4}},
	}}

	out := CloneSummaries(src)
	out[0].Equivalents[0] = "changed"
	out[0].Groups[0].Emissions = 99
	out[0].Label = "November"

	if src[0].Equivalents[0] != "driving 10km" {
		t.Errorf("Equivalents aliased: %v", src[0].Equivalents)
	}
	if src[0].Groups[0].Emissions != 4 {
		t.Errorf("Groups aliased: %v", src[0].Groups)
	}
	if src[0].Label != "October" {
		t.Errorf("Label changed: %v", src[0].Label)
	}
	if CloneSummaries(nil) != nil {
		t.Error("CloneSummaries(nil) should stay nil")
	}
}
