package design

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDesignYAML = `
name: counter
rtl:
  sources:
    - counter.v
    - { file: counter_pkg.sv, type: systemverilog }
  clocks:
    main: clk
  top: [counter]
tb:
  sources:
    - counter_tb.v
  top: counter_tb
language:
  verilog:
    standard: "2005"
flow:
  vivado_synth:
    clock_period: 10.0
`

func TestDecodeDesignYAMLBuildsTypedDesign(t *testing.T) {
	decoded, err := DecodeDesignYAML([]byte(sampleDesignYAML), "/proj")
	require.NoError(t, err)
	require.Equal(t, "counter", decoded.Design.Name)
	require.Len(t, decoded.Design.RTL.Sources, 2)
	require.Equal(t, KindVerilog, decoded.Design.RTL.Sources[0].Kind)
	require.Equal(t, KindSystemVerilog, decoded.Design.RTL.Sources[1].Kind)
	require.Equal(t, "clk", decoded.Design.RTL.Clocks["main"])
	require.Equal(t, []string{"counter"}, decoded.Design.RTL.Top)
	require.Equal(t, []string{"counter_tb"}, decoded.Design.TB.Top)
	require.Equal(t, "2005", decoded.Design.Language.Verilog.Standard)
	require.Equal(t, 10.0, decoded.FlowConfig["vivado_synth"]["clock_period"])
}

func TestDecodeDesignYAMLMissingNameFails(t *testing.T) {
	_, err := DecodeDesignYAML([]byte("rtl:\n  sources: []\n"), "/proj")
	require.Error(t, err)
}

const sampleProjectYAML = `
designs:
  - name: counter
    rtl:
      sources: [counter.v]
  - name: adder
    rtl:
      sources: [adder.v]
flows:
  vivado_synth:
    strategy: Performance_Explore
`

func TestDecodeXedaProjectYAMLBuildsDesignsAndFlows(t *testing.T) {
	proj, err := DecodeXedaProjectYAML([]byte(sampleProjectYAML), "/proj")
	require.NoError(t, err)
	require.Len(t, proj.Designs, 2)
	require.NotNil(t, proj.DesignByName("adder"))
	require.Equal(t, "Performance_Explore", proj.Flows["vivado_synth"]["strategy"])
}
