package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xedahq/xeda/pkg/harness"
)

func TestDefaultVersionParserExtractsFirstVersionToken(t *testing.T) {
	v, err := DefaultVersionParser("GHDL 2.0.0 (2.0.0.r545.g6d5b9fd8) [Dunoon edition]")
	require.NoError(t, err)
	require.Equal(t, [3]int{2, 0, 0}, v)
}

func TestDefaultVersionParserNoVersionFound(t *testing.T) {
	_, err := DefaultVersionParser("no version info here")
	require.Error(t, err)
}

func TestVersionGTELexicographic(t *testing.T) {
	require.True(t, versionGTE([3]int{2, 1, 0}, [3]int{2, 0, 9}))
	require.False(t, versionGTE([3]int{1, 9, 9}, [3]int{2, 0, 0}))
	require.True(t, versionGTE([3]int{2, 0, 0}, [3]int{2, 0, 0}))
}

func TestRunComposesDefaultArgsWithCallSiteArgs(t *testing.T) {
	a := New("/bin/echo")
	a.DefaultArgs = []string{"prefix"}

	res, err := a.Run(context.Background(), []string{"suffix"}, harness.Options{})
	require.NoError(t, err)
	require.Contains(t, res.Stdout, "prefix suffix")
}

func TestDeriveSharesDockerAndHighlights(t *testing.T) {
	a := New("vivado")
	a.Docker = &DockerSettings{ImageName: "xeda/vivado"}
	a.Highlights = []harness.HighlightRule{{Replacement: "!!"}}

	sibling := a.Derive("vivado_lab")
	require.Equal(t, "vivado_lab", sibling.Executable)
	require.Same(t, a.Docker, sibling.Docker)
	require.Equal(t, a.Highlights, sibling.Highlights)
}

func TestVersionIsCachedAfterFirstProbe(t *testing.T) {
	a := New("/bin/echo")
	a.VersionProbe = []string{"1.2.3"}

	v1, err := a.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, [3]int{1, 2, 3}, v1)

	a.Executable = "/bin/false" // would error if re-probed
	v2, err := a.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}
