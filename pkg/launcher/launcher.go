// Package launcher implements the Flow Launcher: the 15-step algorithm
// that resolves a flow class, validates settings, computes fingerprints,
// reuses cached runs, recursively launches dependencies, executes the
// flow, parses reports and emits a structured result (§4.8). Grounded
// almost line-for-line on the source runner's
// FlowLauncher._launch_flow in default_runner.py.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/xedahq/xeda/internal/xerrors"
	"github.com/xedahq/xeda/internal/xlog"
	"github.com/xedahq/xeda/pkg/design"
	flowpkg "github.com/xedahq/xeda/pkg/flow"
	"github.com/xedahq/xeda/pkg/fingerprint"
	"github.com/xedahq/xeda/pkg/runpath"
	"github.com/xedahq/xeda/pkg/settings"
)

const xedaVersion = "0.1.0"

// Launcher orchestrates flow invocations under a single run-path root.
type Launcher struct {
	Paths  *runpath.Manager
	Logger *xlog.Logger

	// Policy knobs. New sets their defaults; callers such as the CLI
	// may change them before calling Launch.
	Backups            bool
	CachedDependencies bool
	ScrubOldRunsPolicy bool
	PostCleanup        bool
	PostCleanupPurge   bool
	ConfirmScrub       func(candidates []string) bool
}

// New creates a Launcher with sane defaults (caching and backups on,
// scrub/purge off).
func New(paths *runpath.Manager, logger *xlog.Logger) *Launcher {
	return &Launcher{
		Paths:              paths,
		Logger:             logger,
		Backups:            true,
		CachedDependencies: true,
	}
}

// SettingsValidator is an optional interface a Flow may implement to
// report schema violations beyond the common Base invariants.
type SettingsValidator interface {
	ValidateSettings(settings map[string]interface{}) []xerrors.ValidationIssue
}

// ParseOnFailureOptIn lets a Flow opt into having ParseReports called
// even when Run reported failure (§7 propagation policy default: skip).
type ParseOnFailureOptIn interface {
	ParseReportsOnFailure() bool
}

// storedSettingsDoc is the persisted settings.json shape (§3 RunRecord,
// §6 external interface).
type storedSettingsDoc struct {
	Design       string                 `json:"design"`
	DesignHash   string                 `json:"design_hash"`
	FlowName     string                 `json:"flow_name"`
	FlowSettings map[string]interface{} `json:"flow_settings"`
	FlowHash     string                 `json:"flow_hash"`
	XedaVersion  string                 `json:"xeda_version"`
}

// storedResultsDoc is the persisted results.json shape.
type storedResultsDoc struct {
	Success        bool                   `json:"success"`
	Timestamp      time.Time              `json:"timestamp"`
	RuntimeSeconds float64                `json:"runtime_seconds"`
	Design         string                 `json:"design"`
	Flow           string                 `json:"flow"`
	RunPath        string                 `json:"run_path"`
	Artifacts      map[string][]string    `json:"artifacts"`
	Extra          map[string]interface{} `json:"flow_specific,omitempty"`
}

// LaunchOptions carries the per-call overrides layered on top of the
// Launcher's policy defaults.
type LaunchOptions struct {
	Depender                bool // true when this is a recursive dependency launch
	CopyResources           []string
	CopyResourcesFrom       string // depender's run-path CopyResources is relative to
	Incremental             bool
	SkipIfPreviousRunExists bool
	CLIOverrides            []string // highest-precedence tier, §4.3
}

// LaunchResult is what Launch returns: the flow's results plus where it ran.
type LaunchResult struct {
	Results *flowpkg.Results
	RunPath string
}

// Launch runs the 15-step algorithm of §4.8 for flowName against d with
// rawSettings as the pre-CLI merged settings tier.
func (l *Launcher) Launch(ctx context.Context, flowName string, d *design.Design, rawSettings map[string]interface{}, opts LaunchOptions) (*LaunchResult, error) {
	logger := l.Logger.WithPrefix(flowName)

	// Step 1: normalise settings, surface validation errors.
	factory, err := flowpkg.Lookup(flowName)
	if err != nil {
		return nil, err
	}
	effective := settings.Merge(rawSettings)
	if err := settings.MergeCLIOverrides(effective, opts.CLIOverrides); err != nil {
		return nil, err
	}

	flowInstance := factory()
	if v, ok := flowInstance.(SettingsValidator); ok {
		if issues := v.ValidateSettings(effective); len(issues) > 0 {
			return nil, &xerrors.SettingsValidationError{FlowName: flowName, Issues: issues}
		}
	}

	// Step 2: design_hash / flow_hash, excluding non-semantic fields.
	designHash, err := d.DesignHash()
	if err != nil {
		return nil, fmt.Errorf("launcher: computing design hash: %w", err)
	}
	flowHash, err := fingerprint.Hash(map[string]interface{}{
		"flow_name": flowName,
		"settings":  fingerprint.ExcludeKeys(effective, settings.NonSemanticFields...),
	})
	if err != nil {
		return nil, fmt.Errorf("launcher: computing flow hash: %w", err)
	}

	// Step 3: target run-path.
	runPath := l.Paths.RunPath(d.Name, designHash, flowName, flowHash, opts.Incremental)

	// Step 4: cache check.
	wantsCache := (opts.Depender || opts.SkipIfPreviousRunExists) && l.CachedDependencies
	if wantsCache && runpath.CacheHit(runPath, flowName, designHash, flowHash) {
		logger.Info("cache hit at %s", runPath)
		results, err := loadStoredResults(runPath)
		if err != nil {
			return nil, err
		}
		return &LaunchResult{Results: results, RunPath: runPath}, nil
	}

	// Step 5: scrub old runs.
	if l.ScrubOldRunsPolicy {
		if err := runpath.ScrubOldRuns(filepath.Dir(runPath), flowName, l.ConfirmScrub); err != nil {
			logger.Warn("scrub_old_runs: %v", err)
		}
	}

	// Step 6: backup/remove/reuse existing run-path.
	if err := runpath.Prepare(runPath, l.Backups, opts.Incremental); err != nil {
		return nil, fmt.Errorf("launcher: preparing run-path: %w", err)
	}

	// Step 7: instantiate, record start time, clean() if requested, Init().
	start := time.Now()
	fctx := flowpkg.NewContext(flowName, d, effective, runPath)
	if clean, _ := effective["clean"].(bool); clean {
		if err := safeCall(func() error { return flowInstance.Clean(fctx) }); err != nil {
			return nil, &xerrors.FlowFatalError{FlowName: flowName, Cause: err, Stack: stackIfDebug(effective, err)}
		}
	}
	if err := safeCall(func() error { return flowInstance.Init(fctx) }); err != nil {
		return nil, &xerrors.FlowFatalError{FlowName: flowName, Cause: err, Stack: stackIfDebug(effective, err)}
	}

	// Copy resources the depender already produced into this run-path,
	// before this flow's own dependencies or run() see it (default_runner.py
	// copies into the dependency's run-path ahead of its own execution).
	if len(opts.CopyResources) > 0 {
		if err := copyResources(opts.CopyResources, opts.CopyResourcesFrom, fctx.RunPath); err != nil {
			return nil, fmt.Errorf("launcher: copying resources into %s: %w", flowName, err)
		}
	}

	// Step 8: write settings.json.
	if err := runpath.AtomicWriteJSON(filepath.Join(runPath, "settings.json"), storedSettingsDoc{
		Design:       d.Name,
		DesignHash:   designHash,
		FlowName:     flowName,
		FlowSettings: effective,
		FlowHash:     flowHash,
		XedaVersion:  xedaVersion,
	}); err != nil {
		return nil, fmt.Errorf("launcher: writing settings.json: %w", err)
	}

	// Step 9: recursively launch dependencies in declaration order.
	for _, dep := range fctx.Dependencies() {
		depResult, err := l.Launch(ctx, dep.FlowName, d, dep.Settings, LaunchOptions{
			Depender:          true,
			CopyResources:     dep.CopyResources,
			CopyResourcesFrom: fctx.RunPath,
		})
		if err != nil {
			return nil, &xerrors.FlowDependencyFailureError{DependerFlow: flowName, DependencyFlow: dep.FlowName}
		}
		if !depResult.Results.Success {
			return nil, &xerrors.FlowDependencyFailureError{DependerFlow: flowName, DependencyFlow: dep.FlowName}
		}
		fctx.RecordCompletedDependency(dep, depResult.Results, depResult.RunPath)
	}

	// Step 10: run(), capturing NonZeroExitCode as a non-fatal run failure.
	success := true
	var runErr error
	if err := safeCall(func() error { return flowInstance.Run(fctx) }); err != nil {
		var nz *xerrors.NonZeroExitCodeError
		if errors.As(err, &nz) {
			success = false
			runErr = err
			logger.Error("run failed: %v", err)
		} else {
			return nil, &xerrors.FlowFatalError{FlowName: flowName, Cause: err, Stack: stackIfDebug(effective, err)}
		}
	}

	// Step 11: record runtime.
	runtime := time.Since(start)

	// Step 12: parse_reports(), ANDed into success, unless run failed and
	// the flow did not opt into parsing on failure (§7 default: skip).
	shouldParse := success
	if !success {
		if optIn, ok := flowInstance.(ParseOnFailureOptIn); ok && optIn.ParseReportsOnFailure() {
			shouldParse = true
		}
	}
	if shouldParse {
		var ok bool
		err := safeCall(func() error {
			var parseErr error
			ok, parseErr = flowInstance.ParseReports(fctx)
			return parseErr
		})
		if err != nil {
			return nil, &xerrors.FlowFatalError{FlowName: flowName, Cause: err, Stack: stackIfDebug(effective, err)}
		}
		success = success && ok
	}

	flowSpecific := make(map[string]interface{}, len(fctx.Metrics)+1)
	for k, v := range fctx.Metrics {
		flowSpecific[k] = v
	}
	if runErr != nil {
		flowSpecific["error"] = runErr.Error()
	}

	results := &flowpkg.Results{
		Success:        success,
		Timestamp:      start,
		RuntimeSeconds: runtime.Seconds(),
		Artifacts:      fctx.Artifacts,
		FlowSpecific:   flowSpecific,
	}

	// Step 13: write results.json.
	if err := runpath.AtomicWriteJSON(filepath.Join(runPath, "results.json"), storedResultsDoc{
		Success:        results.Success,
		Timestamp:      results.Timestamp,
		RuntimeSeconds: results.RuntimeSeconds,
		Design:         d.Name,
		Flow:           flowName,
		RunPath:        runPath,
		Artifacts:      results.Artifacts,
		Extra:          results.FlowSpecific,
	}); err != nil {
		return nil, fmt.Errorf("launcher: writing results.json: %w", err)
	}

	// Step 14: post-cleanup policy. Dependency directories already
	// applied their own policy independently during their own Launch
	// call (§9 open-question resolution).
	if success && (l.PostCleanup || l.PostCleanupPurge) {
		var keep []string
		for _, paths := range results.Artifacts {
			for _, p := range paths {
				if filepath.IsAbs(p) {
					keep = append(keep, p)
				} else {
					keep = append(keep, filepath.Join(runPath, p))
				}
			}
		}
		if err := runpath.PostCleanup(runPath, l.PostCleanupPurge, keep); err != nil {
			logger.Warn("post_cleanup: %v", err)
		}
	}

	// Step 15.
	return &LaunchResult{Results: results, RunPath: runPath}, nil
}

func loadStoredResults(runPath string) (*flowpkg.Results, error) {
	var doc storedResultsDoc
	if !readJSONInto(filepath.Join(runPath, "results.json"), &doc) {
		return nil, fmt.Errorf("launcher: cache hit at %s but results.json unreadable", runPath)
	}
	return &flowpkg.Results{
		Success:        doc.Success,
		Timestamp:      doc.Timestamp,
		RuntimeSeconds: doc.RuntimeSeconds,
		Artifacts:      doc.Artifacts,
		FlowSpecific:   doc.Extra,
	}, nil
}

func copyResources(resources []string, dependerRunPath, dependencyRunPath string) error {
	if len(resources) == 0 {
		return nil
	}
	destDir := filepath.Join(dependencyRunPath, "copied_resources")
	for _, rel := range resources {
		src := rel
		if !filepath.IsAbs(src) {
			src = filepath.Join(dependerRunPath, rel)
		}
		if err := copyFile(src, filepath.Join(destDir, filepath.Base(rel))); err != nil {
			return err
		}
	}
	return nil
}

// safeCall converts a panic inside a Flow lifecycle method into a
// returned error, matching the fatal-error path any unanticipated
// exception takes in the source.
func safeCall(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

func stackIfDebug(effective map[string]interface{}, err error) string {
	debugFlag, _ := effective["debug"].(bool)
	if !debugFlag {
		return ""
	}
	return string(debug.Stack())
}
