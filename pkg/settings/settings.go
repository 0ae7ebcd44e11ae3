// Package settings implements the per-flow typed configuration schema:
// dotted-key override merging from multiple precedence tiers, scalar/list
// coercion, and validation-error accumulation (§4.3).
package settings

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xedahq/xeda/internal/xerrors"
)

// Base is the common settings every flow's Settings schema embeds.
type Base struct {
	Verbose          bool     `yaml:"verbose"`
	Debug            bool     `yaml:"debug"`
	Quiet            bool     `yaml:"quiet"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	NThreads         int      `yaml:"nthreads"`
	ReportsDir       string   `yaml:"reports_dir"`
	OutputsDir       string   `yaml:"outputs_dir"`
	CheckpointsDir   string   `yaml:"checkpoints_dir"`
	Clean            bool     `yaml:"clean"`
	LibPaths         []LibPath `yaml:"lib_paths"`
	Dockerized       bool     `yaml:"dockerized"`
	DockerImageOverride string `yaml:"docker_image_override"`
	PrintCommands    bool     `yaml:"print_commands"`
	RedirectStdout   bool     `yaml:"redirect_stdout"`
	Incremental      bool     `yaml:"incremental"`
}

// LibPath is a named library search path.
type LibPath struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// DefaultBase returns the common base with the source's documented
// defaults (timeout_seconds=7200 matches flow/flow.py).
func DefaultBase() Base {
	return Base{
		TimeoutSeconds: 7200,
		ReportsDir:     "reports",
		OutputsDir:     "outputs",
		CheckpointsDir: "checkpoints",
	}
}

// ValidateBase enforces the base's own invariant (quiet => !verbose); a
// flow's full validator should call this and append its own issues.
func ValidateBase(b Base) []xerrors.ValidationIssue {
	var issues []xerrors.ValidationIssue
	if b.Quiet && b.Verbose {
		issues = append(issues, xerrors.ValidationIssue{
			Location: "quiet",
			Message:  "quiet and verbose cannot both be set",
			Kind:     "value_error",
		})
	}
	if b.Incremental {
		// Incompatible with DSE per §5; flagged here so DSE-facing
		// validators can surface it without re-deriving the rule.
		issues = append(issues, xerrors.ValidationIssue{
			Location: "incremental",
			Message:  "incremental mode pins a fixed run-path and cannot be used under DSE",
			Kind:     "compatibility_error",
		})
	}
	return issues
}

// BaseToMap round-trips b through its yaml tags into a generic map, the
// lowest-precedence tier of the §4.3 merge chain ("flow-class
// defaults").
func BaseToMap(b Base) map[string]interface{} {
	data, err := yaml.Marshal(b)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

// NonSemanticFields are excluded from flow_hash per §3/§4.1.
var NonSemanticFields = []string{"verbose", "debug", "quiet", "nthreads", "print_commands", "redirect_stdout", "lib_paths", "clean", "incremental"}

// Override is one `key=value` entry, key possibly dotted.
type Override struct {
	Key   string
	Value interface{}
}

// CoerceValue implements the scalar/list coercion rules: integer-like,
// float-like, booleans {true,yes,false,no}, bracket-list literals
// [a,b,c], else string.
func CoerceValue(raw string) interface{} {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
		if strings.TrimSpace(inner) == "" {
			return []interface{}{}
		}
		parts := strings.Split(inner, ",")
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = CoerceValue(strings.TrimSpace(p))
		}
		return out
	}

	switch strings.ToLower(trimmed) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}

	return trimmed
}

// ParseOverride splits a "key=value" CLI override and coerces its value.
// Keys may be dotted (impl.strategy=Performance_Explore).
func ParseOverride(kv string) (Override, error) {
	parts := strings.SplitN(kv, "=", 2)
	if len(parts) != 2 {
		return Override{}, fmt.Errorf("settings: override %q is not in key=value form", kv)
	}
	return Override{Key: strings.TrimSpace(parts[0]), Value: CoerceValue(parts[1])}, nil
}

// ApplyOverride sets override.Value into m at its (possibly dotted) key,
// creating intermediate maps as needed.
func ApplyOverride(m map[string]interface{}, o Override) {
	segs := strings.Split(o.Key, ".")
	cur := m
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = o.Value
			return
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[seg] = next
		}
		cur = next
	}
}

// Merge deep-merges the given nested-map tiers in argument order, so
// callers pass them lowest precedence first (flow-class defaults,
// xedaproject flows.<name> table, design's flow.<name> field, explicit
// Launcher overrides); later tiers win on conflicting keys (§4.3,
// invariant 4 in §8). The CLI --flow-settings key=value list is applied
// afterwards by MergeCLIOverrides.
func Merge(tiers ...map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for _, tier := range tiers {
		mergeInto(out, tier)
	}
	return out
}

func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		if sub, ok := v.(map[string]interface{}); ok {
			existing, _ := dst[k].(map[string]interface{})
			if existing == nil {
				existing = map[string]interface{}{}
			}
			mergeInto(existing, sub)
			dst[k] = existing
			continue
		}
		dst[k] = v
	}
}

// MergeCLIOverrides applies a flat list of "key=value" CLI overrides on
// top of an already-merged settings map, the final (highest-precedence)
// tier in §4.3's chain.
func MergeCLIOverrides(m map[string]interface{}, kvs []string) error {
	for _, kv := range kvs {
		o, err := ParseOverride(kv)
		if err != nil {
			return err
		}
		ApplyOverride(m, o)
	}
	return nil
}
