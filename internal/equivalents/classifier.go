// Package equivalents turns the emissions service's "equivalent impact"
// sentences into display text and an icon category.
package equivalents

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Icon identifies the pictogram shown next to an equivalent phrase.
type Icon string

const (
	IconAirTravel      Icon = "air-travel"
	IconLeaf           Icon = "leaf"
	IconRecycle        Icon = "recycle"
	IconFood           Icon = "food"
	IconBooks          Icon = "books"
	IconEnergy         Icon = "energy"
	IconFlame          Icon = "flame"
	IconHome           Icon = "home"
	IconClothing       Icon = "clothing"
	IconShipping       Icon = "shipping"
	IconWaterDrop      Icon = "water-drop"
	IconEmissionsCloud Icon = "emissions-cloud"
)

// DisplayPrefix is stripped from phrases before display.
const DisplayPrefix = "This is equivalent to the "

type rule struct {
	keywords []string
	icon     Icon
}

// Order matters: the first rule with a matching keyword wins.
var rules = []rule{
	{[]string{"flying", "airbus", "plane"}, IconAirTravel},
	{[]string{"tree"}, IconLeaf},
	{[]string{"recycling", "recycle"}, IconRecycle},
	{[]string{"restaurant"}, IconFood},
	{[]string{"library"}, IconBooks},
	{[]string{"electricity", "power"}, IconEnergy},
	{[]string{"gas"}, IconFlame},
	{[]string{"home", "house"}, IconHome},
	{[]string{"fabric", "jeans"}, IconClothing},
	{[]string{"air freighting"}, IconShipping},
	{[]string{"water"}, IconWaterDrop},
}

// ClassifyIcon picks the icon for phrase by keyword.
func ClassifyIcon(phrase string) Icon {
	lower := strings.ToLower(phrase)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.icon
			}
		}
	}
	return IconEmissionsCloud
}

// TrimDisplayText removes DisplayPrefix, trims surrounding whitespace and
// upper-cases the first character only.
func TrimDisplayText(phrase string) string {
	s := strings.TrimSpace(strings.ReplaceAll(phrase, DisplayPrefix, ""))
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// Equivalent is a phrase prepared for display.
type Equivalent struct {
	Phrase string `json:"phrase"`
	Text   string `json:"text"`
	Icon   Icon   `json:"icon"`
}

// Annotate classifies and trims each phrase, preserving order.
func Annotate(phrases []string) []Equivalent {
	out := make([]Equivalent, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, Equivalent{
			Phrase: p,
			Text:   TrimDisplayText(p),
			Icon:   ClassifyIcon(p),
		})
	}
	return out
}
