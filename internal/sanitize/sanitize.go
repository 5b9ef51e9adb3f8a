// Package sanitize strips reasoning scaffolding and markdown decoration from
// model output so it can be shown and spoken as plain text.
//
// It is a regex heuristic over unstructured text. Nested or unbalanced
// brackets are not handled.
package sanitize

import (
	"regexp"
	"strings"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

var rules = []rule{
	{regexp.MustCompile(`(?s)<think>.*?</think>`), ""},
	{regexp.MustCompile(`\[.*?\]`), ""},
	{regexp.MustCompile(`\{.*?\}`), ""},
	{regexp.MustCompile(`<.*?thinking.*?>(?s:.*?)</.*?>`), ""},
	{regexp.MustCompile(`(?i)\bthinking:.*`), ""},
	{regexp.MustCompile(`(?i)\binternal:.*`), ""},
	{regexp.MustCompile(`(?i)\breasoning:.*`), ""},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "${1}"},
	{regexp.MustCompile("`(.*?)`"), "${1}"},
	{regexp.MustCompile(`[*#$@_~]`), ""},
	{regexp.MustCompile(`\n\s*\n`), "\n"},
}

// leak words trigger the line filter when they survive the rules.
var leakWords = []string{"think", "reasoning", "internal"}

// Clean returns raw with reasoning spans, bracketed asides and markdown removed.
func Clean(raw string) string {
	out := raw
	for _, r := range rules {
		out = r.re.ReplaceAllString(out, r.repl)
	}
	out = strings.TrimSpace(out)

	if !mentionsLeak(out) {
		return out
	}

	lines := strings.Split(out, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if mentionsLeak(line) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// mentionsLeak is case-insensitive both for the whole text and per line, so
// an upper-case "THINK" on its own also triggers the line filter.
func mentionsLeak(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range leakWords {
		if strings.Contains(lower, w) {
			return true
		}
	}

	return false
}
