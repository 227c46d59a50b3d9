// Package emoji replaces chat shorthand such as ":)" with the matching emoji.
package emoji

import (
	"sort"
	"strings"
)

// Table maps each shorthand to its symbol.
var Table = map[string]string{
	":)":      "😊",
	":(":      "☹️",
	":D":      "😁",
	":P":      "😜",
	";)":      "😉",
	"B)":      "😎",
	":|":      "😐",
	":O":      "😮",
	"xD":      "😂",
	":*":      "😘",
	":3":      "😸",
	"<3":      "❤️",
	":'(":     "😭",
	":v":      "😋",
	"o:)":     "😇",
	">:(":     "😠",
	"T_T":     "😢",
	"^_^":     "☺️",
	"-_-":     "😑",
	"O:)":     "😇",
	"X_x":     "😵",
	":S":      "😖",
	"B-)":     "😎",
	"<(._.)>": "👽",
	"°-°":     "😲",
	":-*":     "😘",
	"C:":      "🐱",
}

var replacer = newReplacer(Table)

// Apply substitutes every shorthand in text. Matching scans left to right and prefers
// the longest shorthand at each position, so "o:)" becomes "😇" rather than "o😊".
// The result does not depend on map iteration order.
func Apply(text string) string {
	return replacer.Replace(text)
}

func newReplacer(table map[string]string) *strings.Replacer {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	// strings.Replacer picks the first matching pair at a position.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, table[k])
	}
	return strings.NewReplacer(pairs...)
}
