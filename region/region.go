// Package region classifies an ambient locale or timezone signal into a
// pricing region.
//
// Classification is a pure pattern match: a timezone on the Indian subcontinent
// or a locale tag carrying an explicit "IN" region subtag is Local, and every
// other signal, including empty or unparseable ones, is Global.
package region

import (
	"strings"

	"golang.org/x/text/language"
)

// Region selects a pricing table.
type Region string

const (
	Local  Region = "local"
	Global Region = "global"
)

// Valid reports whether r is a known region.
func (r Region) Valid() bool {
	return r == Local || r == Global
}

// String implements fmt.Stringer.
func (r Region) String() string { return string(r) }

var (
	localTimezones = map[string]bool{
		"asia/kolkata":  true,
		"asia/calcutta": true,
	}

	localRegions = map[string]bool{
		"IN": true,
	}
)

// Classify maps a locale or timezone signal to a Region. It never fails.
func Classify(signal string) Region {
	s := strings.TrimSpace(signal)
	if s == "" {
		return Global
	}

	if localTimezones[strings.ToLower(strings.TrimPrefix(s, ":"))] {
		return Local
	}

	tag, err := language.Parse(normalizeLocale(s))
	if err != nil {
		return Global
	}
	reg, conf := tag.Region()
	if conf != language.Exact {
		return Global
	}
	if localRegions[reg.String()] {
		return Local
	}
	return Global
}

// normalizeLocale turns a POSIX locale such as "hi_IN.UTF-8@calendar" into a
// BCP 47 tag ("hi-IN").
func normalizeLocale(s string) string {
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "_", "-")
}
