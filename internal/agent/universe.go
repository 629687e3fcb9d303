package agent

import (
	"sort"

	"nse-agent/internal/config"
)

// Target is one symbol to evaluate, tagged with the sector it is scanned under.
type Target struct {
	Symbol string
	Sector string
}

// Universe maps sectors to their NSE symbols.
type Universe struct {
	sectors map[string][]string
}

// NewUniverse copies m into a Universe.
func NewUniverse(m map[string][]string) Universe {
	u := Universe{sectors: make(map[string][]string, len(m))}
	for sector, symbols := range m {
		u.sectors[sector] = append([]string(nil), symbols...)
	}
	return u
}

// Has reports whether sector exists.
func (u Universe) Has(sector string) bool {
	_, ok := u.sectors[sector]
	return ok
}

// Sectors lists the available sectors, built-in order first and any
// custom sectors after them alphabetically.
func (u Universe) Sectors() []string {
	out := make([]string, 0, len(u.sectors))
	seen := make(map[string]bool, len(u.sectors))
	for _, s := range config.DefaultSectorOrder {
		if u.Has(s) {
			out = append(out, s)
			seen[s] = true
		}
	}
	var rest []string
	for s := range u.sectors {
		if !seen[s] {
			rest = append(rest, s)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Targets lists the symbols of the allowed sectors in scan order. A symbol
// listed in several allowed sectors appears once, under the first.
func (u Universe) Targets(allowed []string) []Target {
	var out []Target
	seen := make(map[string]bool)
	for _, sector := range allowed {
		for _, sym := range u.sectors[sector] {
			if seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, Target{Symbol: sym, Sector: sector})
		}
	}
	return out
}
