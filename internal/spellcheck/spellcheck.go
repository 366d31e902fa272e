// Package spellcheck decides whether a typed answer matches an expected form.
package spellcheck

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options controls the matching policy.
type Options struct {
	// Fuzzy accepts answers within one edit of the expected form.
	Fuzzy bool
	// IgnoreDiacritics folds accented letters before comparing.
	IgnoreDiacritics bool
}

// Oracle compares answers under a fixed policy. It is safe for concurrent use.
type Oracle struct {
	opts Options
}

// New creates an oracle with the given options.
func New(opts Options) *Oracle {
	return &Oracle{opts: opts}
}

// Check is the answer check used for normal quiz answers.
func (o *Oracle) Check(input, expected string) bool {
	if input == "" || expected == "" {
		return false
	}
	got := o.prepare(input)
	want := o.prepare(expected)
	if got == want {
		return true
	}
	if !o.opts.Fuzzy {
		return false
	}
	if min(len([]rune(got)), len([]rune(want))) <= 1 {
		return false
	}
	return levenshtein.Distance(got, want, nil) <= 1
}

// Exact never tolerates typos and is case sensitive; only surrounding
// space and, when configured, diacritics are ignored. Correction
// retyping uses it.
func (o *Oracle) Exact(input, expected string) bool {
	if expected == "" {
		return false
	}
	return o.fold(strings.TrimSpace(input)) == o.fold(strings.TrimSpace(expected))
}

func (o *Oracle) prepare(raw string) string {
	return o.fold(strings.ToLower(strings.TrimSpace(raw)))
}

func (o *Oracle) fold(s string) string {
	if !o.opts.IgnoreDiacritics {
		return s
	}
	return StripDiacritics(s)
}

var letterFold = strings.NewReplacer("ł", "l", "Ł", "L", "ø", "o", "Ø", "O", "ß", "ss")

// StripDiacritics removes combining marks and folds letters that do not
// decompose (such as ł) to their base form.
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return letterFold.Replace(out)
}
