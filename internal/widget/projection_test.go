package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
)

func TestProjectNil(t *testing.T) {
	s, ok := Project(nil)
	assert.False(t, ok)
	assert.Equal(t, Snapshot{}, s)
}

func TestProjectFullSummary(t *testing.T) {
	m := &core.MonthlySummary{
		EmissionsTotal: 1437,
		Label:          "October",
		Groups: []core.GroupBreakdown{
			{Group: emissions.Food, Emissions: 32},
			{Group: emissions.Clothing, Emissions: 25},
			{Group: emissions.Energy, Emissions: 300},
			{Group: emissions.Transport, Emissions: 1080},
		},
	}

	s, ok := Project(m)
	require.True(t, ok)
	assert.Equal(t, 1437.0, s.TotalEmissions)
	assert.Equal(t, "October", s.Month)
	for _, b := range m.Groups {
		assert.Equal(t, b.Emissions, s.Group(b.Group), b.Group.String())
	}
}

func TestProjectMissingGroupsDefaultToZero(t *testing.T) {
	m := &core.MonthlySummary{
		EmissionsTotal: 10,
		Label:          "March",
		Groups:         []core.GroupBreakdown{{Group: emissions.Energy, Emissions: 10}},
	}

	s, ok := Project(m)
	require.True(t, ok)
	assert.Equal(t, Snapshot{TotalEmissions: 10, Month: "March", EnergyEmissions: 10}, s)
}

func TestFallback(t *testing.T) {
	f := Fallback()
	assert.Equal(t, "Your", f.Month)
	assert.Zero(t, f.TotalEmissions)
	for _, g := range emissions.Groups() {
		assert.Zero(t, f.Group(g))
	}
}
