package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubFlow struct{ BaseFlow }

func (stubFlow) Init(ctx *Context) error { return nil }
func (stubFlow) Run(ctx *Context) error  { return nil }

func TestRegisterAndLookup(t *testing.T) {
	Register("stub_test_flow", func() Flow { return &stubFlow{} })

	factory, err := Lookup("stub_test_flow")
	require.NoError(t, err)
	require.NotNil(t, factory())
}

func TestLookupUnknownFlow(t *testing.T) {
	_, err := Lookup("does_not_exist_flow")
	require.Error(t, err)
}

func TestNamesIncludesRegistered(t *testing.T) {
	Register("zz_another_stub_flow", func() Flow { return &stubFlow{} })
	names := Names()
	require.Contains(t, names, "zz_another_stub_flow")
}

func TestAddDependencyPreservesDeclarationOrder(t *testing.T) {
	ctx := NewContext("depender", nil, map[string]interface{}{}, "/tmp/run")
	ctx.AddDependency("synth", nil)
	ctx.AddDependency("sim", nil)

	deps := ctx.Dependencies()
	require.Len(t, deps, 2)
	require.Equal(t, "synth", deps[0].FlowName)
	require.Equal(t, "sim", deps[1].FlowName)
}

func TestPopDependencyConsumesOnce(t *testing.T) {
	ctx := NewContext("depender", nil, map[string]interface{}{}, "/tmp/run")
	ctx.RecordCompletedDependency(Dependency{FlowName: "synth"}, &Results{Success: true}, "/tmp/run/synth")

	first := ctx.PopDependency("synth")
	require.NotNil(t, first)
	require.True(t, first.Results.Success)

	second := ctx.PopDependency("synth")
	require.Nil(t, second)
}

func TestAddArtifactAccumulates(t *testing.T) {
	ctx := NewContext("f", nil, map[string]interface{}{}, "/tmp/run")
	ctx.AddArtifact("netlist", "outputs/top.v")
	ctx.AddArtifact("netlist", "outputs/top_extra.v")
	require.Equal(t, []string{"outputs/top.v", "outputs/top_extra.v"}, ctx.Artifacts["netlist"])
}

func TestAddMetricMergesIntoMetrics(t *testing.T) {
	ctx := NewContext("f", nil, map[string]interface{}{}, "/tmp/run")
	ctx.AddMetric("Fmax", 120.5)
	ctx.AddMetric("lut", 4200.0)
	require.Equal(t, 120.5, ctx.Metrics["Fmax"])
	require.Equal(t, 4200.0, ctx.Metrics["lut"])
}

func TestWriteTemplateRendersIntoRunPath(t *testing.T) {
	dir := t.TempDir()
	ctx := NewContext("f", nil, map[string]interface{}{}, dir)

	path, err := ctx.WriteTemplate("run.tcl", "set_clock {{.Period}}\n", struct{ Period float64 }{10.0})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "run.tcl"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "set_clock 10\n", string(data))
}
