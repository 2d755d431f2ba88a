// Package challenges holds the reduction challenge catalog and the helpers
// used to track an owner's carbon diet.
package challenges

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"aetherflow/internal/core"
)

//go:embed catalog.json
var catalogJSON []byte

// Categories lists challenge categories in display order.
var Categories = []string{"food", "clothing", "energy", "transport"}

var (
	loadOnce sync.Once
	catalog  []core.Challenge
	loadErr  error
)

// Catalog returns the embedded challenge catalog.
func Catalog() ([]core.Challenge, error) {
	loadOnce.Do(func() {
		loadErr = json.Unmarshal(catalogJSON, &catalog)
		if loadErr != nil {
			loadErr = fmt.Errorf("decode challenge catalog: %w", loadErr)
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return append([]core.Challenge(nil), catalog...), nil
}

// FilterByCategory returns the challenges in category (case-insensitive).
// An empty category returns everything.
func FilterByCategory(all []core.Challenge, category string) []core.Challenge {
	category = strings.TrimSpace(category)
	if category == "" {
		return all
	}
	var out []core.Challenge
	for _, c := range all {
		if strings.EqualFold(c.Category, category) {
			out = append(out, c)
		}
	}
	return out
}

// Find looks a challenge up by its sub-category.
func Find(all []core.Challenge, subCategory string) (core.Challenge, bool) {
	for _, c := range all {
		if c.SubCategory == subCategory {
			return c, true
		}
	}
	return core.Challenge{}, false
}

// ContainsChallenge reports whether diets already include subCategory.
func ContainsChallenge(diets []core.Diet, subCategory string) bool {
	for _, d := range diets {
		if d.Challenge == subCategory {
			return true
		}
	}
	return false
}

// Ongoing returns the diets that are not complete yet.
func Ongoing(diets []core.Diet) []core.Diet {
	var out []core.Diet
	for _, d := range diets {
		if !d.IsComplete {
			out = append(out, d)
		}
	}
	return out
}

// CountCompleted counts completed diets per challenge. Incomplete diets are ignored.
func CountCompleted(diets []core.Diet) map[string]int {
	counts := make(map[string]int)
	for _, d := range diets {
		if d.IsComplete {
			counts[d.Challenge]++
		}
	}
	return counts
}

// ChallengeCount is a single entry of CountCompleted in stable order.
type ChallengeCount struct {
	Challenge string `json:"challenge"`
	Count     int    `json:"count"`
}

// SortedCounts returns counts ordered by challenge name.
func SortedCounts(counts map[string]int) []ChallengeCount {
	out := make([]ChallengeCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, ChallengeCount{Challenge: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Challenge < out[j].Challenge })
	return out
}
