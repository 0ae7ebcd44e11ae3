package flows

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xedahq/xeda/internal/xerrors"
	"github.com/xedahq/xeda/pkg/design"
	"github.com/xedahq/xeda/pkg/flow"
	"github.com/xedahq/xeda/pkg/harness"
	"github.com/xedahq/xeda/pkg/reportparser"
	"github.com/xedahq/xeda/pkg/tool"
)

func init() {
	flow.Register("vivado_synth", func() flow.Flow { return &VivadoSynth{} })
}

// VivadoSynth synthesizes a design with Xilinx Vivado in batch mode,
// grounded on original_source/.../flows/vivado/vivado_synth.py. The
// generated TCL creates a project, runs synth_design and opt_design and
// writes the timing and utilization reports; it has no place or route
// step.
type VivadoSynth struct {
	vivado *tool.Adapter
	fpga   *design.FPGA
}

func (f *VivadoSynth) Init(ctx *flow.Context) error {
	part := settingsString(ctx.Settings, "fpga_part", "")
	if part == "" {
		return &xerrors.SettingsValidationError{
			FlowName: "vivado_synth",
			Issues: []xerrors.ValidationIssue{
				{Location: "fpga_part", Message: "FPGA part must be specified", Kind: "value_error"},
			},
		}
	}
	f.fpga = design.ParseFPGAPart(part)
	f.vivado = tool.New("vivado")
	f.vivado.DefaultArgs = []string{"-nojournal", "-notrace", "-mode", "batch"}
	return nil
}

const synthScriptBody = `
create_project -force synth_project . -part {{.Part}}
read_verilog -sv [glob {{.SrcGlob}}]
synth_design -top {{.Top}} -part {{.Part}}
opt_design
report_timing_summary -file reports/route_design/timing_summary.rpt
report_utilization -file reports/route_design/utilization.xml -format xml
`

type synthScriptData struct {
	Part    string
	SrcGlob string
	Top     string
}

func (f *VivadoSynth) Run(ctx *flow.Context) error {
	clockPeriod := settingsFloat(ctx.Settings, "clock_period", 0)
	if clockPeriod <= 0 {
		return &xerrors.SettingsValidationError{
			FlowName: "vivado_synth",
			Issues: []xerrors.ValidationIssue{
				{Location: "clock_period", Message: "clock_period must be specified and positive", Kind: "value_error"},
			},
		}
	}

	top := "top"
	if len(ctx.Design.RTL.Top) > 0 {
		top = ctx.Design.RTL.Top[0]
	}
	scriptPath, err := ctx.WriteTemplate("synth.tcl", synthScriptBody, synthScriptData{
		Part:    f.fpga.Part,
		SrcGlob: filepath.Join(ctx.Design.RootPath, "*.v"),
		Top:     top,
	})
	if err != nil {
		return fmt.Errorf("vivado_synth: writing synth script: %w", err)
	}

	if _, err := f.vivado.Run(context.Background(), []string{"-source", scriptPath}, harness.Options{
		WorkDir:    ctx.RunPath,
		StdoutPath: filepath.Join(ctx.RunPath, "vivado_stdout.log"),
		Check:      true,
	}); err != nil {
		return err
	}

	ctx.AddArtifact("vivado_stdout", "vivado_stdout.log")
	ctx.AddArtifact("utilization_report", "reports/route_design/utilization.xml")
	return nil
}

var (
	timingSummaryPattern = regexp.MustCompile(`(?s)WNS\(ns\).*?(?P<wns>-?\d+(?:\.\d+)?)\s`)
	clockSummaryPattern  = regexp.MustCompile(`(?P<clock_period>\d+(?:\.\d+)?)\s+(?P<clock_frequency>\d+(?:\.\d+)?)`)
)

func (f *VivadoSynth) ParseReports(ctx *flow.Context) (bool, error) {
	reportsDir := filepath.Join(ctx.RunPath, "reports", "route_design")

	timing, timingOK, err := reportparser.SweepRegex(filepath.Join(reportsDir, "timing_summary.rpt"), reportparser.SweepOptions{
		Patterns: []reportparser.Pattern{
			{Required: false, Alternatives: []*regexp.Regexp{timingSummaryPattern}},
			{Required: false, Alternatives: []*regexp.Regexp{clockSummaryPattern}},
		},
	})
	missingTiming := err == reportparser.ErrReportMissing
	if err != nil && !missingTiming {
		return false, fmt.Errorf("vivado_synth: parsing timing report: %w", err)
	}

	failed := !missingTiming && !timingOK
	wns := settingsFloat(timing, "wns", 0)
	if wns < 0 {
		failed = true
	}
	if period := settingsFloat(timing, "clock_period", 0); period > 0 {
		ctx.AddMetric("Fmax", 1000.0/(period-wns))
	}

	utilization, err := reportparser.SweepXML(filepath.Join(reportsDir, "utilization.xml"))
	if err != nil && err != reportparser.ErrReportMissing {
		return false, fmt.Errorf("vivado_synth: parsing utilization report: %w", err)
	}
	if lut, ok := lutCount(utilization); ok {
		ctx.AddMetric("lut", lut)
	}

	return !failed, nil
}

// lutCount finds a row whose key contains "lut" (case-insensitive) in the
// utilization report's nested section/row/column map and returns its
// numeric cell, trying the "Used" column first and falling back to any
// column that parses. When several rows or columns qualify, the one used
// follows map iteration order and is not fixed.
func lutCount(utilization map[string]interface{}) (float64, bool) {
	for _, sec := range utilization {
		rows, ok := sec.(map[string]interface{})
		if !ok {
			continue
		}
		for rowKey, row := range rows {
			if !strings.Contains(strings.ToLower(rowKey), "lut") {
				continue
			}
			cols, ok := row.(map[string]interface{})
			if !ok {
				continue
			}
			if v, ok := cols["Used"]; ok {
				if f, err := strconv.ParseFloat(fmt.Sprintf("%v", v), 64); err == nil {
					return f, true
				}
			}
			for _, v := range cols {
				if f, err := strconv.ParseFloat(fmt.Sprintf("%v", v), 64); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func (f *VivadoSynth) Clean(ctx *flow.Context) error {
	return flow.BaseFlow{}.Clean(ctx)
}
