package utils

import (
	"regexp"
	"strings"
)

const (
	minPlateLength = 3
	maxPlateLength = 15
)

type plateFormat struct {
	name    string
	pattern *regexp.Regexp
}

// Regional formats, most specific first. Each pattern captures three groups.
var plateFormats = []plateFormat{
	{name: "GH_STANDARD", pattern: regexp.MustCompile(`^([A-Z]{2})[-\s]*(\d{4})[-\s]*(\d{2})$`)},
	{name: "GH_ALTERNATIVE", pattern: regexp.MustCompile(`^([A-Z]{3})[-\s]*(\d{3,4})[-\s]*([A-Z]{1,2})$`)},
	{name: "GENERIC", pattern: regexp.MustCompile(`^([A-Z]{1,3})[-\s]*(\d{3,4})[-\s]*([A-Z\d]{1,3})$`)},
}

var (
	plateNoise = regexp.MustCompile(`[^A-Z0-9\s-]+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// NormalizePlate приводит номер к каноническому виду: верхний регистр, без лишних
// пробелов, в формате GROUP-GROUP-GROUP если номер соответствует известному шаблону.
// Возвращает false, если после очистки ничего не осталось.
func NormalizePlate(raw string) (string, bool) {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = plateNoise.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(whitespace.ReplaceAllString(cleaned, " "))
	cleaned = strings.Trim(cleaned, "- ")
	if cleaned == "" {
		return "", false
	}

	for _, f := range plateFormats {
		if m := f.pattern.FindStringSubmatch(cleaned); m != nil {
			return strings.Join(m[1:], "-"), true
		}
	}
	return cleaned, true
}

// PlateFormat returns the name of the regional format the plate matches, or "".
func PlateFormat(plate string) string {
	for _, f := range plateFormats {
		if f.pattern.MatchString(plate) {
			return f.name
		}
	}
	return ""
}

// ValidPlateLength reports whether a normalized plate has a plausible length.
func ValidPlateLength(plate string) bool {
	n := len(plate)
	return n >= minPlateLength && n <= maxPlateLength
}
