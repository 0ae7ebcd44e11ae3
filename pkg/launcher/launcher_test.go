package launcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xedahq/xeda/internal/xerrors"
	"github.com/xedahq/xeda/internal/xlog"
	"github.com/xedahq/xeda/pkg/design"
	flowpkg "github.com/xedahq/xeda/pkg/flow"
	"github.com/xedahq/xeda/pkg/runpath"
)

func testDesign(t *testing.T) *design.Design {
	t.Helper()
	dir := t.TempDir()
	return &design.Design{Name: "top", RootPath: dir}
}

func newTestLauncher(t *testing.T) *Launcher {
	t.Helper()
	paths, err := runpath.New(t.TempDir())
	require.NoError(t, err)
	return New(paths, xlog.New(xlog.LevelQuiet))
}

// succeedingFlow always runs and reports success.
type succeedingFlow struct {
	flowpkg.BaseFlow
	initCalls, runCalls int
	onInit              func(*flowpkg.Context)
}

func (f *succeedingFlow) Init(ctx *flowpkg.Context) error {
	f.initCalls++
	if f.onInit != nil {
		f.onInit(ctx)
	}
	return nil
}

func (f *succeedingFlow) Run(ctx *flowpkg.Context) error {
	f.runCalls++
	ctx.AddArtifact("netlist", "outputs/top.v")
	return nil
}

// failingFlow always reports a non-zero exit, a non-fatal run failure.
type failingFlow struct {
	flowpkg.BaseFlow
}

func (failingFlow) Init(*flowpkg.Context) error { return nil }
func (failingFlow) Run(*flowpkg.Context) error {
	return &xerrors.NonZeroExitCodeError{Argv: []string{"false"}, ExitCode: 1}
}

func TestLaunchTopLevelRunsAndWritesResults(t *testing.T) {
	flowpkg.Register("lt_succeed", func() flowpkg.Flow { return &succeedingFlow{} })

	l := newTestLauncher(t)
	d := testDesign(t)

	res, err := l.Launch(context.Background(), "lt_succeed", d, map[string]interface{}{}, LaunchOptions{})
	require.NoError(t, err)
	require.True(t, res.Results.Success)
	require.FileExists(t, filepath.Join(res.RunPath, "settings.json"))
	require.FileExists(t, filepath.Join(res.RunPath, "results.json"))
}

func TestLaunchCacheHitSkipsRerun(t *testing.T) {
	f := &succeedingFlow{}
	flowpkg.Register("lt_cache", func() flowpkg.Flow { return f })

	l := newTestLauncher(t)
	d := testDesign(t)

	_, err := l.Launch(context.Background(), "lt_cache", d, map[string]interface{}{}, LaunchOptions{})
	require.NoError(t, err)

	// A second launch as a dependency (SkipIfPreviousRunExists-equivalent
	// path: Depender=true) must hit cache rather than run the flow again.
	res2, err := l.Launch(context.Background(), "lt_cache", d, map[string]interface{}{}, LaunchOptions{Depender: true})
	require.NoError(t, err)
	require.True(t, res2.Results.Success)
	require.Equal(t, 1, f.runCalls)
}

func TestLaunchDependencyFailurePropagatesFatal(t *testing.T) {
	flowpkg.Register("lt_dep_fail_child", func() flowpkg.Flow { return &failingFlow{} })
	flowpkg.Register("lt_dep_fail_parent", func() flowpkg.Flow {
		return &succeedingFlow{onInit: func(ctx *flowpkg.Context) {
			ctx.AddDependency("lt_dep_fail_child", map[string]interface{}{})
		}}
	})

	l := newTestLauncher(t)
	d := testDesign(t)

	_, err := l.Launch(context.Background(), "lt_dep_fail_parent", d, map[string]interface{}{}, LaunchOptions{})
	require.Error(t, err)
}

func TestLaunchDependencyOrderMatchesDeclaration(t *testing.T) {
	var order []string
	flowpkg.Register("lt_order_a", func() flowpkg.Flow {
		return &succeedingFlow{onInit: func(ctx *flowpkg.Context) { order = append(order, "a") }}
	})
	flowpkg.Register("lt_order_b", func() flowpkg.Flow {
		return &succeedingFlow{onInit: func(ctx *flowpkg.Context) { order = append(order, "b") }}
	})
	flowpkg.Register("lt_order_parent", func() flowpkg.Flow {
		return &succeedingFlow{onInit: func(ctx *flowpkg.Context) {
			ctx.AddDependency("lt_order_a", map[string]interface{}{})
			ctx.AddDependency("lt_order_b", map[string]interface{}{})
			order = append(order, "parent")
		}}
	})

	l := newTestLauncher(t)
	d := testDesign(t)

	_, err := l.Launch(context.Background(), "lt_order_parent", d, map[string]interface{}{}, LaunchOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"parent", "a", "b"}, order)
}

func TestLaunchUnknownFlowReturnsError(t *testing.T) {
	l := newTestLauncher(t)
	d := testDesign(t)
	_, err := l.Launch(context.Background(), "lt_does_not_exist", d, map[string]interface{}{}, LaunchOptions{})
	require.Error(t, err)
}

// metricsFlow records a metric from Run and another from ParseReports, to
// verify both feed Results.FlowSpecific (§4.6).
type metricsFlow struct{}

func (metricsFlow) Init(*flowpkg.Context) error { return nil }
func (metricsFlow) Run(ctx *flowpkg.Context) error {
	ctx.AddMetric("from_run", 1.0)
	return nil
}
func (metricsFlow) ParseReports(ctx *flowpkg.Context) (bool, error) {
	ctx.AddMetric("from_parse", 2.0)
	return true, nil
}
func (metricsFlow) Clean(ctx *flowpkg.Context) error { return flowpkg.BaseFlow{}.Clean(ctx) }

func TestLaunchMergesMetricsFromRunAndParseReportsIntoFlowSpecific(t *testing.T) {
	flowpkg.Register("lt_metrics", func() flowpkg.Flow { return metricsFlow{} })

	l := newTestLauncher(t)
	d := testDesign(t)

	res, err := l.Launch(context.Background(), "lt_metrics", d, map[string]interface{}{}, LaunchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1.0, res.Results.FlowSpecific["from_run"])
	require.Equal(t, 2.0, res.Results.FlowSpecific["from_parse"])
}

// cleaningFlow records whether Clean ran before Init.
type cleaningFlow struct {
	cleanCalled     bool
	cleanBeforeInit bool
}

func (f *cleaningFlow) Init(*flowpkg.Context) error {
	f.cleanBeforeInit = f.cleanCalled
	return nil
}
func (f *cleaningFlow) Run(*flowpkg.Context) error                  { return nil }
func (f *cleaningFlow) ParseReports(*flowpkg.Context) (bool, error) { return true, nil }
func (f *cleaningFlow) Clean(*flowpkg.Context) error                { f.cleanCalled = true; return nil }

func TestLaunchCallsCleanBeforeInitWhenCleanSettingTrue(t *testing.T) {
	f := &cleaningFlow{}
	flowpkg.Register("lt_clean", func() flowpkg.Flow { return f })

	l := newTestLauncher(t)
	d := testDesign(t)

	_, err := l.Launch(context.Background(), "lt_clean", d, map[string]interface{}{"clean": true}, LaunchOptions{})
	require.NoError(t, err)
	require.True(t, f.cleanCalled)
	require.True(t, f.cleanBeforeInit)
}

// copyTargetFlow declares a dependency with copy_resources and reports
// whether the copied file was visible by the time its own Run executed.
type copyTargetFlow struct {
	sawCopiedFileInRun bool
}

func (f *copyTargetFlow) Init(*flowpkg.Context) error { return nil }
func (f *copyTargetFlow) Run(ctx *flowpkg.Context) error {
	_, err := os.Stat(filepath.Join(ctx.RunPath, "copied_resources", "generated.txt"))
	f.sawCopiedFileInRun = err == nil
	return nil
}
func (copyTargetFlow) ParseReports(*flowpkg.Context) (bool, error) { return true, nil }
func (copyTargetFlow) Clean(ctx *flowpkg.Context) error            { return flowpkg.BaseFlow{}.Clean(ctx) }

// copySourceFlow writes the file to be copied during Init, since
// copy_resources for a dependency is applied before that dependency's
// Launch returns — well before the depender's own Run executes.
type copySourceFlow struct{}

func (copySourceFlow) Init(ctx *flowpkg.Context) error {
	if err := os.MkdirAll(ctx.RunPath, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(ctx.RunPath, "generated.txt"), []byte("hi"), 0o644); err != nil {
		return err
	}
	ctx.AddDependency("lt_copy_target", map[string]interface{}{}, "generated.txt")
	return nil
}
func (copySourceFlow) Run(*flowpkg.Context) error                  { return nil }
func (copySourceFlow) ParseReports(*flowpkg.Context) (bool, error) { return true, nil }
func (copySourceFlow) Clean(ctx *flowpkg.Context) error            { return flowpkg.BaseFlow{}.Clean(ctx) }

func TestLaunchCopiesResourcesIntoDependencyBeforeItRuns(t *testing.T) {
	target := &copyTargetFlow{}
	flowpkg.Register("lt_copy_target", func() flowpkg.Flow { return target })
	flowpkg.Register("lt_copy_source", func() flowpkg.Flow { return copySourceFlow{} })

	l := newTestLauncher(t)
	d := testDesign(t)

	_, err := l.Launch(context.Background(), "lt_copy_source", d, map[string]interface{}{}, LaunchOptions{})
	require.NoError(t, err)
	require.True(t, target.sawCopiedFileInRun)
}
