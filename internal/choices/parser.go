// Package choices turns free-form question text into a structured choice set.
package choices

import (
	"regexp"
	"strings"
)

// Choice is a single selectable option presented to the human.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

const (
	minChoices = 2
	maxChoices = 9
)

var (
	numberedRe = regexp.MustCompile(`(?m)(^|\s)\d+[.):-]\s+`)
	letteredRe = regexp.MustCompile(`(?m)^[A-Za-z][.):-]\s+`)
	bulletedRe = regexp.MustCompile(`(?m)^[-*•]\s+`)
	triggerRe  = regexp.MustCompile(`(?i)\b(choose|pick|select|prefer|like|want|use|between|recommend)\b`)

	// Connective prose that precedes the first real option in an inline list,
	// e.g. "Would you like to use PostgreSQL, ..." -> "PostgreSQL".
	leadingConnectiveRe = regexp.MustCompile(`(?i)^(?:would you like\s+|do you want\s+|to\s+|a\s+|an\s+|the\s+|between\s+|either\s+)+`)
)

// Parse heuristically detects an enumerable option set in question text.
// Patterns are tried in a fixed priority order (numbered, lettered, bulleted,
// trigger-word comma list); the first one yielding between 2 and 9 options
// wins. Once list-style formatting is detected the comma fallback never
// fires. Returns nil when no usable option set is found.
func Parse(text string) []Choice {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if opts, found := parseNumbered(text); found {
		return build(opts)
	}
	if opts, found := parseLined(text, letteredRe); found {
		return build(opts)
	}
	if opts, found := parseLined(text, bulletedRe); found {
		return build(opts)
	}
	return build(parseInline(text))
}

// build dedupes labels, enforces the size window and maps to Choices.
func build(opts []string) []Choice {
	seen := make(map[string]bool, len(opts))
	labels := make([]string, 0, len(opts))
	for _, o := range opts {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		labels = append(labels, o)
	}
	if len(labels) < minChoices || len(labels) > maxChoices {
		return nil
	}
	cs := make([]Choice, len(labels))
	for i, l := range labels {
		cs[i] = Choice{Label: l, Value: l}
	}
	return cs
}

// parseNumbered handles both line-anchored and inline numbered lists
// ("1. Postgres 2. MySQL 3. SQLite"). The second return reports whether
// numbered formatting was detected at all, so lower-priority patterns are
// skipped even when the segment count is unusable.
func parseNumbered(text string) ([]string, bool) {
	marks := numberedRe.FindAllStringIndex(text, -1)
	if len(marks) < minChoices {
		return nil, false
	}
	segs := make([]string, 0, len(marks))
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		seg := text[m[1]:end]
		// A segment never spans lines: the rest of the line after a later
		// marker is prose, not an option.
		if nl := strings.IndexByte(seg, '\n'); nl >= 0 {
			seg = seg[:nl]
		}
		segs = append(segs, strings.TrimRight(strings.TrimSpace(seg), "?.,;"))
	}
	return segs, true
}

// parseLined collects the remainder of every line starting with the marker.
func parseLined(text string, re *regexp.Regexp) ([]string, bool) {
	var segs []string
	matched := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		loc := re.FindStringIndex(line)
		if loc == nil || loc[0] != 0 {
			continue
		}
		matched = true
		segs = append(segs, strings.TrimRight(line[loc[1]:], "?.,;"))
	}
	// A lone marker line is not list formatting; let later patterns try.
	return segs, matched && len(segs) >= minChoices
}

// parseInline detects a comma-separated list following a trigger word and
// terminated by a question mark.
func parseInline(text string) []string {
	trig := triggerRe.FindAllStringIndex(text, -1)
	if len(trig) == 0 {
		return nil
	}
	// Options live between the last trigger word and the question mark.
	start := trig[len(trig)-1][1]
	qm := strings.IndexByte(text[start:], '?')
	if qm < 0 {
		return nil
	}
	list := strings.TrimSpace(text[start : start+qm])
	if list == "" || !strings.Contains(list, ",") {
		return nil
	}

	parts := strings.Split(list, ", ")
	var segs []string
	for _, p := range parts {
		// "B or C" and ", or C" both split on the "or" connective.
		for _, q := range strings.Split(p, " or ") {
			q = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(q), "or "))
			if q != "" {
				segs = append(segs, q)
			}
		}
	}
	if len(segs) > 0 {
		// Leading connective words are stripped from the first segment only;
		// later segments are already clean option text.
		segs[0] = strings.TrimSpace(leadingConnectiveRe.ReplaceAllString(segs[0], ""))
	}
	return segs
}
