package flows

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/xedahq/xeda/internal/xerrors"
	"github.com/xedahq/xeda/pkg/flow"
	"github.com/xedahq/xeda/pkg/harness"
	"github.com/xedahq/xeda/pkg/reportparser"
	"github.com/xedahq/xeda/pkg/tool"
)

func init() {
	flow.Register("ghdl_sim", func() flow.Flow { return &GhdlSim{} })
}

// GhdlSim analyzes, elaborates and runs a VHDL testbench with GHDL,
// grounded on original_source/.../flows/ghdl/__init__.py's Ghdl/GhdlSim
// classes (analysis_flags/elab_flags/werror settings, docker image
// "hdlc/sim:osvb").
type GhdlSim struct {
	ghdl *tool.Adapter
}

func (f *GhdlSim) Init(ctx *flow.Context) error {
	f.ghdl = tool.New("ghdl")
	if settingsBool(ctx.Settings, "dockerized") {
		f.ghdl.Docker = &tool.DockerSettings{ImageName: "hdlc/sim", ImageTag: "osvb"}
	}
	return nil
}

func (f *GhdlSim) Run(ctx *flow.Context) error {
	d := ctx.Design
	if len(d.TB.Sources) == 0 {
		return &xerrors.SettingsValidationError{
			FlowName: "ghdl_sim",
			Issues: []xerrors.ValidationIssue{
				{Location: "tb.sources", Message: "at least one testbench source is required", Kind: "value_error"},
			},
		}
	}

	analysisFlags := settingsStringSlice(ctx.Settings, "analysis_flags")
	elabFlags := settingsStringSlice(ctx.Settings, "elab_flags")
	if elabFlags == nil {
		elabFlags = []string{"--syn-binding"}
	}
	if settingsBool(ctx.Settings, "werror") {
		analysisFlags = append(analysisFlags, "--warn-binding", "--warn-error")
	}

	var sources []string
	for _, s := range d.RTL.Sources {
		sources = append(sources, s.Resource.Path)
	}
	for _, s := range d.TB.Sources {
		sources = append(sources, s.Resource.Path)
	}
	for _, src := range sources {
		args := append([]string{"-a"}, analysisFlags...)
		args = append(args, src)
		if _, err := f.ghdl.Run(context.Background(), args, harness.Options{
			WorkDir: ctx.RunPath,
			Check:   true,
		}); err != nil {
			return err
		}
	}

	top := d.TB.UUT
	if top == "" && len(d.TB.Top) > 0 {
		top = d.TB.Top[0]
	}

	elabArgs := append([]string{"-e"}, elabFlags...)
	elabArgs = append(elabArgs, top)
	if _, err := f.ghdl.Run(context.Background(), elabArgs, harness.Options{WorkDir: ctx.RunPath, Check: true}); err != nil {
		return err
	}

	runLog := filepath.Join(ctx.RunPath, "sim.log")
	_, err := f.ghdl.Run(context.Background(), []string{"-r", top, "--assert-level=error"}, harness.Options{
		WorkDir:    ctx.RunPath,
		StdoutPath: runLog,
		Check:      true,
	})
	if err != nil {
		return err
	}
	ctx.AddArtifact("sim_log", "sim.log")
	return nil
}

var simFailurePattern = regexp.MustCompile(`(?m)^(?P<failures>\d+) errors?, \d+ failures?`)

func (f *GhdlSim) ParseReports(ctx *flow.Context) (bool, error) {
	runLog := filepath.Join(ctx.RunPath, "sim.log")
	results, _, err := reportparser.SweepRegex(runLog, reportparser.SweepOptions{
		Patterns: []reportparser.Pattern{{Required: false, Alternatives: []*regexp.Regexp{simFailurePattern}}},
	})
	if err != nil && err != reportparser.ErrReportMissing {
		return false, fmt.Errorf("ghdl_sim: parsing simulation log: %w", err)
	}
	if failures := settingsFloat(results, "failures", 0); failures > 0 {
		return false, nil
	}
	return true, nil
}

func (f *GhdlSim) Clean(ctx *flow.Context) error {
	return flow.BaseFlow{}.Clean(ctx)
}
