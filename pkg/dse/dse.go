// Package dse implements the Design-Space-Exploration Driver (§4.9): a
// pluggable Optimizer feeds successive batches of candidate settings to
// a pool of OS-level worker processes, each wrapping one Flow Launcher
// invocation, until a stop criterion is met. Grounded on
// original_source/.../flow_runner/dse/dse_runner.py's Dse.run_flow loop,
// adapted from a ProcessPool of forked Python workers to a self-re-exec
// pool of xeda worker subprocesses, and on the teacher's
// pkg/executor/parallel.go work-queue/WaitGroup shape.
package dse

import (
	"time"

	"github.com/xedahq/xeda/pkg/design"
	"github.com/xedahq/xeda/pkg/flow"
)

// FlowOutcome is the result of one candidate's Launcher invocation.
type FlowOutcome struct {
	SettingsSnapshot map[string]interface{}
	Results          *flow.Results
	Timestamp        time.Time
	RunPath          string
}

// Optimizer owns search state (best result, bounds, iteration count,
// variation choices) and decides what to try next (§4.9).
type Optimizer interface {
	// NextBatch returns the settings dicts to try this iteration, or nil
	// to stop.
	NextBatch() []map[string]interface{}
	// ProcessOutcome folds one worker's outcome into the optimizer's
	// state and reports whether it improved on the current best.
	ProcessOutcome(outcome *FlowOutcome, idx int) bool
	// Best returns the best outcome found so far, or nil.
	Best() *FlowOutcome
}

// StopCriteria bounds a Driver.Run loop (§4.9 step 3, §5 DSE wall-clock
// budget).
type StopCriteria struct {
	MaxRuntimeMinutes        int
	MaxFailedIters           int
	MaxFailedItersWithBest   int
}

// RunConfig parameterises one Driver.Run invocation.
type RunConfig struct {
	FlowName      string
	Design        *design.Design
	MaxWorkers    int
	PerTaskTimeout time.Duration
	KeepOptimalRunDirs bool
	Stop          StopCriteria
}
