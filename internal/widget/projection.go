// Package widget flattens the latest monthly summary into the snapshot shown
// by home-screen widgets.
package widget

import (
	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
)

// FallbackMonth is shown before any summary exists.
const FallbackMonth = "Your"

// Snapshot is the flat key-value view consumed by widget renderers.
type Snapshot struct {
	TotalEmissions     float64 `json:"totalEmissions"`
	Month              string  `json:"month"`
	FoodEmissions      float64 `json:"foodEmissions"`
	ClothingEmissions  float64 `json:"clothingEmissions"`
	EnergyEmissions    float64 `json:"energyEmissions"`
	TransportEmissions float64 `json:"transportEmissions"`
}

// Project returns the snapshot for latest. A nil summary yields ok=false and
// callers must leave any stored snapshot untouched. Missing groups read as 0.
func Project(latest *core.MonthlySummary) (Snapshot, bool) {
	if latest == nil {
		return Snapshot{}, false
	}

	s := Snapshot{
		TotalEmissions: latest.EmissionsTotal,
		Month:          latest.Label,
	}
	for _, g := range emissions.Groups() {
		b, _ := latest.Breakdown(g)
		s.set(g, b.Emissions)
	}
	return s, true
}

// Fallback is the placeholder snapshot used before data exists and after reset.
func Fallback() Snapshot {
	return Snapshot{Month: FallbackMonth}
}

// Group returns the emissions for g.
func (s Snapshot) Group(g emissions.Group) float64 {
	switch g {
	case emissions.Food:
		return s.FoodEmissions
	case emissions.Clothing:
		return s.ClothingEmissions
	case emissions.Energy:
		return s.EnergyEmissions
	case emissions.Transport:
		return s.TransportEmissions
	}
	return 0
}

func (s *Snapshot) set(g emissions.Group, v float64) {
	switch g {
	case emissions.Food:
		s.FoodEmissions = v
	case emissions.Clothing:
		s.ClothingEmissions = v
	case emissions.Energy:
		s.EnergyEmissions = v
	case emissions.Transport:
		s.TransportEmissions = v
	}
}
