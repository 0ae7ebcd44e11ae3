// Package reportparser implements the two report-extraction modes the
// Flow Primitive applies to tool output: an ordered regex sweep with
// optional sequential consumption, and an XML section/table sweep
// (§4.6). Grounded on the source runner's parse_report_regex/parse_regex
// in flow/flow.py.
package reportparser

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// Pattern is one regex-sweep entry. Alternatives holds "try each until
// one matches" variants of the same logical pattern; a single-pattern
// entry has exactly one element.
type Pattern struct {
	Alternatives []*regexp.Regexp
	Required     bool
}

// SweepOptions configures one regex sweep over a report file.
type SweepOptions struct {
	Patterns   []Pattern
	Sequential bool // drop the matched prefix so later patterns see only the remainder
	DOTALL     bool // let '.' match newlines too, per §4.6, instead of requiring inline (?s) per pattern
}

// ErrReportMissing marks a missing report file — a warning per §4.6, not
// a hard error; callers decide whether that makes the flow fail.
var ErrReportMissing = fmt.Errorf("reportparser: report file not found")

// SweepRegex applies opts.Patterns to the content of path in order,
// merging named capture groups into the returned map with primitive
// coercion (int -> float -> bool -> string). Returns (results, ok) where
// ok is false if a required pattern failed to match.
func SweepRegex(path string, opts SweepOptions) (map[string]interface{}, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, ErrReportMissing
		}
		return nil, false, fmt.Errorf("reportparser: reading %s: %w", path, err)
	}
	return SweepRegexContent(string(data), opts)
}

// SweepRegexContent is SweepRegex without the filesystem read, used
// directly by tests and by callers that already hold the report text.
func SweepRegexContent(content string, opts SweepOptions) (map[string]interface{}, bool, error) {
	results := map[string]interface{}{}
	remainder := content
	ok := true

	for _, pat := range opts.Patterns {
		matched := false
		for _, re := range pat.Alternatives {
			if opts.DOTALL {
				re = dotAll(re)
			}
			loc := re.FindStringSubmatchIndex(remainder)
			if loc == nil {
				continue
			}
			names := re.SubexpNames()
			matches := re.FindStringSubmatch(remainder)
			for i, name := range names {
				if name == "" || i >= len(matches) {
					continue
				}
				results[name] = coerce(matches[i])
			}
			matched = true
			if opts.Sequential {
				remainder = remainder[loc[1]:]
			}
			break
		}
		if !matched && pat.Required {
			ok = false
		}
	}

	return results, ok, nil
}

// dotAll returns an equivalent regex with the (?s) flag set, so '.'
// matches newlines, without requiring every caller to inline it.
func dotAll(re *regexp.Regexp) *regexp.Regexp {
	return regexp.MustCompile(`(?s)` + re.String())
}

// coerce applies the documented int -> float -> bool -> string ladder to
// a captured string.
func coerce(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true", "True", "TRUE":
		return true
	case "false", "False", "FALSE":
		return false
	}
	return s
}
