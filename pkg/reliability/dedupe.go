package reliability

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/phenomenon0/capper-engine/pkg/factors"
)

// NormalizeName lowercases a factor name, strips accents and drops every
// character that is not a letter or digit, so "Net Rating", "net_rating"
// and "net-rating!" collide.
func NormalizeName(name string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})),
		norm.NFC,
	)
	out, _, err := transform.String(t, strings.ToLower(name))
	if err != nil {
		return strings.ToLower(name)
	}
	return out
}

// Dedupe merges factors whose normalized names collide. The merged factor
// is the highest-reliability instance, with every instance's reasoning
// joined and sources unioned. Groups keep the order of their first member.
func Dedupe(fs []factors.Factor) []factors.Factor {
	index := make(map[string]int)
	var out []factors.Factor
	var reasons [][]string

	for _, f := range fs {
		key := NormalizeName(f.Name)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			f.Sources = append([]string(nil), f.Sources...)
			out = append(out, f)
			reasons = append(reasons, nonEmpty(f.Reasoning))
			continue
		}

		kept := out[i]
		sources := union(kept.Sources, f.Sources)
		if f.Reliability > kept.Reliability {
			kept = f
		}
		kept.Sources = sources
		out[i] = kept
		reasons[i] = append(reasons[i], nonEmpty(f.Reasoning)...)
	}

	for i := range out {
		out[i].Reasoning = strings.Join(reasons[i], "; ")
	}
	return out
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
