// Package tool is the Tool Adapter (§4.5): metadata about an external
// executable that the Process Harness consumes — native path, optional
// docker image, version probing, default arguments and highlight rules.
// Grounded on the source runner's Tool class (tool.py).
package tool

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xedahq/xeda/pkg/harness"
)

// DockerSettings activates the docker adapter on the Harness (§4.4's
// optional docker wrapping).
type DockerSettings struct {
	ImageName string
	ImageTag  string
}

func (d *DockerSettings) image() string {
	if d == nil || d.ImageName == "" {
		return ""
	}
	if d.ImageTag == "" {
		return d.ImageName
	}
	return d.ImageName + ":" + d.ImageTag
}

// VersionParser extracts a (major, minor, patch) tuple from a version
// probe's stdout. The default parser looks for the first "N.N[.N]" run.
type VersionParser func(probeOutput string) ([3]int, error)

// Adapter is a record of executable metadata; Run composes defaults with
// call-site arguments and delegates to the Process Harness.
type Adapter struct {
	Executable     string
	Docker         *DockerSettings
	VersionProbe   []string // default: ["--version"]
	VersionParser  VersionParser
	MinVersion     *[3]int
	DefaultArgs    []string
	Highlights     []harness.HighlightRule
	RedirectStdout string

	cachedVersion *[3]int
}

// New builds an Adapter for executable with the documented defaults.
func New(executable string) *Adapter {
	return &Adapter{
		Executable:   executable,
		VersionProbe: []string{"--version"},
	}
}

// Derive returns a sibling adapter for a different executable, sharing
// this adapter's docker and highlight configuration — used e.g. to
// invoke a companion binary (klayout, g++) alongside the main tool.
func (a *Adapter) Derive(executable string) *Adapter {
	cp := *a
	cp.Executable = executable
	cp.cachedVersion = nil
	return &cp
}

func (a *Adapter) dockerized() bool { return a.Docker != nil }

// Run composes a.DefaultArgs with args and delegates to the Harness. If
// the adapter is dockerized, the command is wrapped per §4.4's docker
// adapter contract.
func (a *Adapter) Run(ctx context.Context, args []string, opts harness.Options) (*harness.Result, error) {
	full := append(append([]string{}, a.DefaultArgs...), args...)
	opts.Args = full
	opts.Highlights = append(opts.Highlights, a.Highlights...)
	if opts.StdoutPath == "" {
		opts.StdoutPath = a.RedirectStdout
	}

	if a.dockerized() {
		return a.runDocker(ctx, full, opts)
	}
	opts.Executable = a.Executable
	return harness.Run(ctx, opts)
}

// runDocker wraps the invocation per §4.4: docker run --rm -i -t
// --workdir=<wd> --volume=<cwd>:<cwd> --volume=<wd>:<wd> [--env-file
// <envfile>] <image> <cmd> <args>.
func (a *Adapter) runDocker(ctx context.Context, args []string, opts harness.Options) (*harness.Result, error) {
	wd := opts.WorkDir
	if wd == "" {
		wd = "."
	}
	cwd, err := filepath.Abs(".")
	if err != nil {
		return nil, fmt.Errorf("tool: resolving cwd: %w", err)
	}
	absWd, err := filepath.Abs(wd)
	if err != nil {
		return nil, fmt.Errorf("tool: resolving workdir: %w", err)
	}

	dockerArgs := []string{
		"run", "--rm", "--interactive", "--tty",
		fmt.Sprintf("--workdir=%s", absWd),
		fmt.Sprintf("--volume=%s:%s", cwd, cwd),
		fmt.Sprintf("--volume=%s:%s", absWd, absWd),
	}

	if len(opts.Env) > 0 {
		envFile := filepath.Join(absWd, a.Executable+"_docker.env")
		var sb strings.Builder
		for _, kv := range opts.Env {
			sb.WriteString(kv)
			sb.WriteByte('\n')
		}
		if err := harness.WriteEnvFile(envFile, sb.String()); err != nil {
			return nil, err
		}
		dockerArgs = append(dockerArgs, "--env-file", envFile)
	}

	dockerArgs = append(dockerArgs, a.Docker.image(), a.Executable)
	dockerArgs = append(dockerArgs, args...)

	opts.Executable = "docker"
	opts.Args = dockerArgs
	opts.Env = nil
	return harness.Run(ctx, opts)
}

// Version probes (once, then caches) and returns the tool's version
// tuple.
func (a *Adapter) Version(ctx context.Context) ([3]int, error) {
	if a.cachedVersion != nil {
		return *a.cachedVersion, nil
	}
	res, err := a.Run(ctx, a.VersionProbe, harness.Options{Check: true})
	if err != nil {
		return [3]int{}, fmt.Errorf("tool: probing version of %s: %w", a.Executable, err)
	}
	parser := a.VersionParser
	if parser == nil {
		parser = DefaultVersionParser
	}
	v, err := parser(res.Stdout)
	if err != nil {
		return [3]int{}, err
	}
	a.cachedVersion = &v
	return v, nil
}

// VersionGTE compares the probed version lexicographically against
// target (major, minor, patch).
func (a *Adapter) VersionGTE(ctx context.Context, target [3]int) (bool, error) {
	v, err := a.Version(ctx)
	if err != nil {
		return false, err
	}
	return versionGTE(v, target), nil
}

func versionGTE(v, target [3]int) bool {
	for i := 0; i < 3; i++ {
		if v[i] > target[i] {
			return true
		}
		if v[i] < target[i] {
			return false
		}
	}
	return true
}

// DefaultVersionParser extracts the first "N.N[.N]" token in the probe
// output.
func DefaultVersionParser(output string) ([3]int, error) {
	fields := strings.FieldsFunc(output, func(r rune) bool {
		return r != '.' && (r < '0' || r > '9')
	})
	for _, f := range fields {
		parts := strings.Split(f, ".")
		if len(parts) < 2 {
			continue
		}
		var v [3]int
		ok := true
		for i := 0; i < len(parts) && i < 3; i++ {
			n, err := strconv.Atoi(parts[i])
			if err != nil {
				ok = false
				break
			}
			v[i] = n
		}
		if ok {
			return v, nil
		}
	}
	return [3]int{}, fmt.Errorf("tool: no version found in %q", output)
}
