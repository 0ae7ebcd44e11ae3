package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoerceValueTypes(t *testing.T) {
	require.Equal(t, int64(42), CoerceValue("42"))
	require.Equal(t, 3.14, CoerceValue("3.14"))
	require.Equal(t, true, CoerceValue("true"))
	require.Equal(t, true, CoerceValue("yes"))
	require.Equal(t, false, CoerceValue("false"))
	require.Equal(t, "Performance_Explore", CoerceValue("Performance_Explore"))
	require.Equal(t, []interface{}{"a", "b", "c"}, CoerceValue("[a,b,c]"))
}

func TestParseOverrideDottedKey(t *testing.T) {
	o, err := ParseOverride("impl.strategy=Performance_Explore")
	require.NoError(t, err)
	require.Equal(t, "impl.strategy", o.Key)
	require.Equal(t, "Performance_Explore", o.Value)
}

func TestParseOverrideRejectsMalformed(t *testing.T) {
	_, err := ParseOverride("no-equals-sign")
	require.Error(t, err)
}

func TestApplyOverrideCreatesNestedMaps(t *testing.T) {
	m := map[string]interface{}{}
	ApplyOverride(m, Override{Key: "impl.strategy", Value: "Performance_Explore"})

	nested, ok := m["impl"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Performance_Explore", nested["strategy"])
}

func TestOverrideRoundTrip(t *testing.T) {
	// parse_overrides(render(k, v)) == {k: coerce(v)} per §8 invariant 5.
	o, err := ParseOverride("stop_time=200us")
	require.NoError(t, err)
	m := map[string]interface{}{}
	ApplyOverride(m, o)
	require.Equal(t, "200us", m["stop_time"])
}

func TestMergePrecedenceHighestWins(t *testing.T) {
	// §8 scenario S2: design file sets 100us, xedaproject sets 50us,
	// CLI sets 200us. Effective value is 200us.
	classDefaults := map[string]interface{}{"stop_time": "10us"}
	xedaproject := map[string]interface{}{"stop_time": "50us"}
	designFile := map[string]interface{}{"stop_time": "100us"}

	merged := Merge(classDefaults, xedaproject, designFile)
	require.NoError(t, MergeCLIOverrides(merged, []string{"stop_time=200us"}))

	require.Equal(t, "200us", merged["stop_time"])
}

func TestMergeDeepMergesNestedMaps(t *testing.T) {
	a := map[string]interface{}{"impl": map[string]interface{}{"strategy": "Default", "retiming": true}}
	b := map[string]interface{}{"impl": map[string]interface{}{"strategy": "Performance_Explore"}}

	merged := Merge(a, b)
	impl := merged["impl"].(map[string]interface{})
	require.Equal(t, "Performance_Explore", impl["strategy"])
	require.Equal(t, true, impl["retiming"])
}

func TestValidateBaseQuietVerboseConflict(t *testing.T) {
	issues := ValidateBase(Base{Quiet: true, Verbose: true})
	require.Len(t, issues, 1)
	require.Equal(t, "quiet", issues[0].Location)
}

func TestValidateBaseIncrementalFlag(t *testing.T) {
	issues := ValidateBase(Base{Incremental: true})
	require.Len(t, issues, 1)
	require.Equal(t, "incremental", issues[0].Location)
}

func TestValidateBaseNoIssues(t *testing.T) {
	require.Empty(t, ValidateBase(DefaultBase()))
}
