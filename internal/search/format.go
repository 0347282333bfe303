package search

import (
	"strings"
	"unicode"
)

// FormatBirthdate turns YYYY-MM-DD into MM/DD/YYYY. Anything else is
// returned unchanged.
func FormatBirthdate(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return parts[1] + "/" + parts[2] + "/" + parts[0]
}

// Initials returns the avatar initials for a participant name.
func Initials(name string) string {
	parts := strings.Fields(name)
	switch {
	case len(parts) == 0:
		return "?"
	case len(parts) >= 2:
		first := []rune(parts[0])[0]
		last := []rune(parts[len(parts)-1])[0]
		return strings.ToUpper(string([]rune{first, last}))
	}

	runes := []rune(parts[0])
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return strings.Map(unicode.ToUpper, string(runes))
}
