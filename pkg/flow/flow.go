// Package flow defines the Flow Primitive contract (§4.7) and the
// static flow registry that replaces the source's inheritance-based
// auto-registration (§9): flows register themselves at startup via
// Register(name, factory) and the Launcher looks them up by name.
package flow

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/xedahq/xeda/pkg/design"
)

// Dependency is one declared dependency of a Flow, registered during
// Init via Context.AddDependency.
type Dependency struct {
	FlowName      string
	Settings      map[string]interface{}
	CopyResources []string
}

// CompletedDependency is a dependency after the Launcher has run it,
// readable by the depender via Context.PopDependency.
type CompletedDependency struct {
	Dependency
	Results  *Results
	RunPath  string
	consumed bool
}

// Results is the typed result bag a Flow populates; FlowSpecific carries
// metrics particular to one flow (Fmax, LUT count, ...) the way the
// source's loose attribute bag did, without losing static typing for the
// common fields (§9).
type Results struct {
	Success        bool
	Timestamp      time.Time
	RuntimeSeconds float64
	Tools          []ToolInfo
	Artifacts      map[string][]string
	FlowSpecific   map[string]interface{}
}

// ToolInfo records which tool(s) a flow invoked, for results.json.
type ToolInfo struct {
	Name    string
	Version string
}

// Context is the per-invocation state handed to a Flow's lifecycle
// methods: its design, merged settings, run-path, and dependency
// bookkeeping.
type Context struct {
	FlowName string
	Design   *design.Design
	Settings map[string]interface{}
	RunPath  string

	Artifacts map[string][]string
	Metrics   map[string]interface{}

	dependencies          []Dependency
	completedDependencies []*CompletedDependency
}

// NewContext constructs a Context ready for Init.
func NewContext(flowName string, d *design.Design, settings map[string]interface{}, runPath string) *Context {
	return &Context{
		FlowName:  flowName,
		Design:    d,
		Settings:  settings,
		RunPath:   runPath,
		Artifacts: map[string][]string{},
		Metrics:   map[string]interface{}{},
	}
}

// AddDependency declares a dependency on flowName with the given
// settings overlay and copy_resources list, in the order Init calls it
// — the Launcher satisfies dependencies in this same declaration order
// (§4.7, §5 ordering guarantee).
func (c *Context) AddDependency(flowName string, settings map[string]interface{}, copyResources ...string) {
	c.dependencies = append(c.dependencies, Dependency{
		FlowName:      flowName,
		Settings:      settings,
		CopyResources: copyResources,
	})
}

// Dependencies returns the declared dependencies in declaration order.
func (c *Context) Dependencies() []Dependency { return c.dependencies }

// RecordCompletedDependency is called by the Launcher after each
// dependency finishes, in declaration order.
func (c *Context) RecordCompletedDependency(dep Dependency, results *Results, runPath string) {
	c.completedDependencies = append(c.completedDependencies, &CompletedDependency{
		Dependency: dep,
		Results:    results,
		RunPath:    runPath,
	})
}

// PopDependency returns (and marks consumed) the first not-yet-consumed
// completed dependency matching flowName, mirroring the source's
// pop_dependency(flow_class).
func (c *Context) PopDependency(flowName string) *CompletedDependency {
	for _, d := range c.completedDependencies {
		if d.FlowName == flowName && !d.consumed {
			d.consumed = true
			return d
		}
	}
	return nil
}

// CompletedDependencies returns all completed dependencies in the order
// they finished (== declaration order, since dependencies run
// sequentially in that order per §4.8 step 9).
func (c *Context) CompletedDependencies() []*CompletedDependency {
	return c.completedDependencies
}

// AddArtifact records an output path under name, relative to RunPath
// unless already absolute.
func (c *Context) AddArtifact(name string, paths ...string) {
	c.Artifacts[name] = append(c.Artifacts[name], paths...)
}

// AddMetric merges a parsed metric (Fmax, LUT count, ...) into the
// flow's results map. Both run() and ParseReports() feed this map per
// §4.6's "both modes merge their output into the flow's results map"
// contract; the Launcher copies it into Results.FlowSpecific verbatim.
func (c *Context) AddMetric(name string, value interface{}) {
	c.Metrics[name] = value
}

// Flow is the contract every flow implementation satisfies (§4.7).
type Flow interface {
	// Init runs after construction: may adjust settings based on the
	// design and register dependencies via ctx.AddDependency.
	Init(ctx *Context) error
	// Run is invoked with cwd set to the run-path; orchestrates Tool
	// calls and populates ctx.Artifacts.
	Run(ctx *Context) error
	// ParseReports runs after Run returns and reports overall success.
	ParseReports(ctx *Context) (bool, error)
	// Clean recursively removes the run-path's contents.
	Clean(ctx *Context) error
}

// BaseFlow is an embeddable default implementation of ParseReports/Clean
// for flows that only need Init/Run: ParseReports reports success, and
// Clean removes the run-path directory together with its contents.
type BaseFlow struct{}

func (BaseFlow) ParseReports(*Context) (bool, error) { return true, nil }
func (BaseFlow) Clean(ctx *Context) error            { return os.RemoveAll(ctx.RunPath) }

// Factory constructs a new Flow instance for one invocation; Flow
// objects do not outlive a single Launcher invocation (§3 Lifecycle).
type Factory func() Flow

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds factory under name to the static flow registry. Flows
// call this from an init() func, the systems-language replacement for
// the source's __init_subclass__ auto-registration (§9).
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Lookup returns the factory registered under name, or an error if none
// was registered.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("flow: no flow registered under name %q", name)
	}
	return f, nil
}

// Names returns every registered flow name, sorted, for `list-flows`.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
