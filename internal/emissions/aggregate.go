package emissions

// CategoryResult is the emissions total for one fine category.
type CategoryResult struct {
	Category        string
	Emissions       float64
	Count           int
	FractionOfTotal float64
}

// GroupTotal is the reconciled total for one canonical group.
type GroupTotal struct {
	Group           Group
	Emissions       float64
	Count           int
	FractionOfTotal float64
}

// Aggregate reduces fine-category results into the four canonical groups.
//
// The result always holds exactly one entry per group in canonical order,
// zero-valued when nothing mapped to it. Values are summed; categories
// without a canonical group are dropped.
func Aggregate(results []CategoryResult) []GroupTotal {
	totals := make([]GroupTotal, len(groupNames))
	for _, g := range Groups() {
		totals[g].Group = g
	}

	for _, r := range results {
		g, ok := CanonicalGroup(r.Category)
		if !ok {
			continue
		}
		totals[g].Emissions += r.Emissions
		totals[g].Count += r.Count
		totals[g].FractionOfTotal += r.FractionOfTotal
	}

	return totals
}

// Unmapped returns the categories Aggregate would drop.
func Unmapped(results []CategoryResult) []string {
	var out []string
	for _, r := range results {
		if _, ok := CanonicalGroup(r.Category); !ok {
			out = append(out, r.Category)
		}
	}
	return out
}
