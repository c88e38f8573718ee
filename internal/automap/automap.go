// Package automap proposes source-to-destination field mappings by name
// similarity.
package automap

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const (
	// DefaultThreshold is the minimum similarity for an automatic mapping.
	DefaultThreshold = 0.6
	// DefaultMargin is how far the best candidate must lead the runner-up.
	DefaultMargin = 0.05
)

// Options tunes the matcher. Zero values select the defaults.
type Options struct {
	Threshold float64
	Margin    float64
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Margin <= 0 {
		o.Margin = DefaultMargin
	}
	return o
}

// Normalize lowercases name and strips everything but letters and digits, so
// "Customer_ID", "customerId" and "customer-id" compare equal.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over the
// normalized names, in [0, 1].
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		if na == "" {
			return 0
		}
		return 1
	}
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	return 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)
}

type candidate struct {
	dest   string
	source string
	score  float64
	runner float64
}

// Automap matches destination fields to source fields. Existing mappings are
// kept as they are and their fields take no further part. Each remaining
// source field is used at most once. Assignment is global: the unresolved
// destination with the highest acceptable score is fixed first, then scores
// are re-evaluated over the sources still free. The result lists existing
// mappings first, then new automaps in destination name order.
func Automap(sourceFields, destinationFields []string, existing []models.FieldMap, opts Options) []models.FieldMap {
	opts = opts.withDefaults()

	usedSource := make(map[string]bool)
	usedDest := make(map[string]bool)
	result := make([]models.FieldMap, 0, len(existing)+len(destinationFields))
	for _, m := range existing {
		result = append(result, m.Clone())
		usedSource[m.SourceField] = true
		usedDest[m.DestinationField] = true
	}

	sources := remaining(sourceFields, usedSource)
	dests := remaining(destinationFields, usedDest)

	var added []models.FieldMap
	for len(sources) > 0 && len(dests) > 0 {
		best, ok := pick(sources, dests, opts)
		if !ok {
			break
		}
		score := round(best.score)
		added = append(added, models.FieldMap{
			SourceField:      best.source,
			DestinationField: best.dest,
			Confidence:       &score,
			IsAutomapped:     true,
		})
		sources = without(sources, best.source)
		dests = without(dests, best.dest)
	}

	sort.Slice(added, func(i, j int) bool { return added[i].DestinationField < added[j].DestinationField })
	return append(result, added...)
}

// pick returns the acceptable candidate with the highest score. Ties go to
// the destination that sorts first.
func pick(sources, dests []string, opts Options) (candidate, bool) {
	var best candidate
	found := false
	for _, d := range dests {
		c := rank(d, sources)
		if c.score < opts.Threshold || c.score-c.runner < opts.Margin {
			continue
		}
		if !found || c.score > best.score {
			best = c
			found = true
		}
	}
	return best, found
}

// rank scores every source against dest and returns the best one together
// with the runner-up score. Equal scores keep the source that sorts first.
func rank(dest string, sources []string) candidate {
	c := candidate{dest: dest, score: -1}
	for _, s := range sources {
		score := Similarity(s, dest)
		switch {
		case score > c.score:
			if c.score > c.runner {
				c.runner = c.score
			}
			c.source, c.score = s, score
		case score > c.runner:
			c.runner = score
		}
	}
	if c.runner < 0 {
		c.runner = 0
	}
	return c
}

// remaining de-duplicates and sorts names, dropping blanks and used ones.
func remaining(names []string, used map[string]bool) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" || used[n] || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func without(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func round(f float64) float64 {
	return math.Round(f*1000) / 1000
}
