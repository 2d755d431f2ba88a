// Package emissions maps fine-grained merchant categories onto the four
// canonical footprint groups and reduces per-category results into group totals.
package emissions

import (
	"strings"
)

// Group is one of the four canonical footprint buckets.
type Group int

const (
	Food Group = iota
	Clothing
	Energy
	Transport
)

var groupNames = [...]string{
	Food:      "Food",
	Clothing:  "Clothing",
	Energy:    "Energy",
	Transport: "Transport",
}

// Groups returns the canonical groups in display order.
func Groups() []Group {
	return []Group{Food, Clothing, Energy, Transport}
}

func (g Group) String() string {
	if g < Food || g > Transport {
		return "Unknown"
	}
	return groupNames[g]
}

// Valid reports whether g is one of the canonical groups.
func (g Group) Valid() bool {
	return g >= Food && g <= Transport
}

// ParseGroup resolves a group name case-insensitively.
func ParseGroup(name string) (Group, bool) {
	name = strings.TrimSpace(name)
	for _, g := range Groups() {
		if strings.EqualFold(g.String(), name) {
			return g, true
		}
	}
	return 0, false
}

// FineCategory is a merchant-level category as used by the emissions API.
type FineCategory string

const (
	Groceries           FineCategory = "Groceries"
	CafesAndRestaurants FineCategory = "Cafes and Restaurants"
	ClothingCategory    FineCategory = "Clothing"
	Lodging             FineCategory = "Lodging"
	DigitalGoods        FineCategory = "Digital Goods"
	Fuel                FineCategory = "Fuel"
	Airfare             FineCategory = "Airfare"
)

type categoryInfo struct {
	mcc   string
	group Group
}

var taxonomy = map[FineCategory]categoryInfo{
	Groceries:           {mcc: "5411", group: Food},
	CafesAndRestaurants: {mcc: "5812", group: Food},
	ClothingCategory:    {mcc: "5691", group: Clothing},
	Lodging:             {mcc: "3501", group: Energy},
	DigitalGoods:        {mcc: "5732", group: Energy},
	Fuel:                {mcc: "5541", group: Transport},
	Airfare:             {mcc: "3012", group: Transport},
}

// index keyed by normalized name and by MCC, built once at init
var (
	byKey = make(map[string]FineCategory, len(taxonomy))
	byMCC = make(map[string]FineCategory, len(taxonomy))
)

func init() {
	for fc, info := range taxonomy {
		byKey[normalize(string(fc))] = fc
		byMCC[info.mcc] = fc
	}
}

// FineCategories returns all known fine categories sorted by MCC.
func FineCategories() []FineCategory {
	return []FineCategory{Airfare, Lodging, Groceries, Fuel, ClothingCategory, DigitalGoods, CafesAndRestaurants}
}

// MCC returns the merchant category code sent to the emissions API.
func (fc FineCategory) MCC() string {
	return taxonomy[fc].mcc
}

// Group returns the canonical group for a known fine category.
func (fc FineCategory) Group() (Group, bool) {
	info, ok := taxonomy[fc]
	return info.group, ok
}

// LookupFineCategory resolves free-form input such as "CafesAndRestaurants",
// "cafes & restaurants" or an MCC like "5812" to a known fine category.
func LookupFineCategory(s string) (FineCategory, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if fc, ok := byMCC[s]; ok {
		return fc, true
	}
	fc, ok := byKey[normalize(s)]
	return fc, ok
}

// FineCategoryByMCC resolves a merchant category code.
func FineCategoryByMCC(code string) (FineCategory, bool) {
	fc, ok := byMCC[strings.TrimSpace(code)]
	return fc, ok
}

// CanonicalGroup returns the canonical group for a fine category name.
// Unknown input is reported with ok=false and must be excluded by callers.
func CanonicalGroup(fine string) (Group, bool) {
	fc, ok := LookupFineCategory(fine)
	if !ok {
		return 0, false
	}
	return fc.Group()
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", "and")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '-' || r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
