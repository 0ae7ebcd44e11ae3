package harness

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Executable: "/bin/echo",
		Args:       []string{"hello"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, res.Stdout, "hello")
}

func TestRunWritesStdoutLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "tool_stdout.log")

	_, err := Run(context.Background(), Options{
		Executable: "/bin/echo",
		Args:       []string{"line one"},
		StdoutPath: logPath,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "line one")
}

func TestRunCheckRaisesOnNonZeroExit(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Executable: "/bin/sh",
		Args:       []string{"-c", "exit 7"},
		Check:      true,
	})
	require.Error(t, err)
}

func TestRunWithoutCheckReturnsExitCode(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Executable: "/bin/sh",
		Args:       []string{"-c", "exit 7"},
		Check:      false,
	})
	require.NoError(t, err)
	require.Equal(t, 7, res.ExitCode)
}

func TestRunExecutableNotFound(t *testing.T) {
	_, err := Run(context.Background(), Options{Executable: "xeda-definitely-not-a-real-tool"})
	require.Error(t, err)
}

func TestRunTimeoutKillsChild(t *testing.T) {
	// §8 scenario S4: a tool that sleeps far longer than its timeout is
	// killed and Run returns within a small multiple of the timeout.
	start := time.Now()
	_, err := Run(context.Background(), Options{
		Executable: "/bin/sh",
		Args:       []string{"-c", "sleep 60"},
		Timeout:    300 * time.Millisecond,
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	require.Less(t, elapsed, 3*time.Second)
}

func TestRunHighlightRuleRewritesDisplayedLine(t *testing.T) {
	var seen []string
	_, err := Run(context.Background(), Options{
		Executable: "/bin/echo",
		Args:       []string{"ERROR: bad thing"},
		Highlights: []HighlightRule{
			{Pattern: regexp.MustCompile("^ERROR:"), Replacement: "!!ERROR:"},
		},
		OnLine: func(line string) { seen = append(seen, line) },
	})
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	require.Contains(t, seen[0], "!!ERROR:")
}

func TestDecodeUTF8ReplacesInvalidSequences(t *testing.T) {
	out := decodeUTF8([]byte{0xff, 0xfe, 'o', 'k'})
	require.Contains(t, out, "ok")
}

func TestStripANSIRemovesEscapeCodes(t *testing.T) {
	require.Equal(t, "hello", stripANSI("\x1b[31mhello\x1b[0m"))
}
