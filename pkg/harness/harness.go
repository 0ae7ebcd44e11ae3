// Package harness supervises execution of a single external command:
// merged stdout/stderr over a pty, live line classification, timeout
// escalation, and exit-code policy (§4.4). Grounded on the source
// runner's _run_process (bufsize=1, universal_newlines, errors=replace)
// and on the disabled command_runner.py's process-group kill logic,
// which this harness makes a first-class, always-on feature.
package harness

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"

	"github.com/xedahq/xeda/internal/xerrors"
	"github.com/xedahq/xeda/internal/xlog"
)

// HighlightRule rewrites a matched line for console display (colourising
// warnings/errors). The first matching rule wins.
type HighlightRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Options configures one Run invocation.
type Options struct {
	Executable    string
	Args          []string
	Env           []string // overlay entries "KEY=VALUE", appended to os.Environ()
	WorkDir       string
	StdoutPath    string // if set, every line is appended here
	Check         bool   // raise NonZeroExitCodeError on non-zero exit
	Timeout       time.Duration
	Color         bool
	Highlights    []HighlightRule
	LinePrefix    string
	OnLine        func(line string) // optional live callback, e.g. console echo
	Logger        *xlog.Logger
}

// Result is what Run returns on a non-fatal exit (zero or non-zero
// without Check).
type Result struct {
	ExitCode int
	Stdout   string // captured merged output
}

// Run executes Options.Executable with a merged stdout/stderr pty,
// enforcing the configured timeout via SIGTERM-then-SIGKILL escalation
// on the child's process group (§4.4, §5). ctx cancellation is treated
// like a keyboard interrupt: the child is terminated and ctx.Err() is
// returned after cleanup.
func Run(ctx context.Context, opts Options) (*Result, error) {
	path, err := resolveExecutable(opts.Executable)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, opts.Args...)
	cmd.Dir = opts.WorkDir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	// New process group so the timeout/interrupt path can kill the whole
	// tree, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("harness: starting %s: %w", path, err)
	}
	defer ptmx.Close()

	var logFile *os.File
	if opts.StdoutPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.StdoutPath), 0o755); err != nil {
			return nil, fmt.Errorf("harness: creating log dir: %w", err)
		}
		logFile, err = os.Create(opts.StdoutPath)
		if err != nil {
			return nil, fmt.Errorf("harness: creating stdout log %s: %w", opts.StdoutPath, err)
		}
		defer logFile.Close()
	}

	var captured captureBuffer
	done := make(chan error, 1)
	go func() { done <- streamOutput(ptmx, logFile, &captured, opts) }()

	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, opts.Timeout)
		defer cancelTimeout()
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var timedOut bool
	select {
	case err := <-waitErr:
		<-done
		return finish(cmd, err, opts, captured.String(), timedOut)
	case <-runCtx.Done():
		timedOut = runCtx.Err() == context.DeadlineExceeded
		killProcessGroup(cmd)
		<-waitErr
		<-done
		if timedOut {
			return nil, &xerrors.NonZeroExitCodeError{Argv: append([]string{path}, opts.Args...), Timeout: true}
		}
		return nil, ctx.Err()
	}
}

// killProcessGroup sends SIGTERM, waits a short grace period, then
// SIGKILL, to the child's process group (§4.4, §5).
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		pgid = cmd.Process.Pid
	}
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	time.Sleep(500 * time.Millisecond)
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func finish(cmd *exec.Cmd, waitErr error, opts Options, stdout string, timedOut bool) (*Result, error) {
	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("harness: running %s: %w", opts.Executable, waitErr)
		}
	}
	if exitCode != 0 && opts.Check {
		return nil, &xerrors.NonZeroExitCodeError{
			Argv:     append([]string{opts.Executable}, opts.Args...),
			ExitCode: exitCode,
			Timeout:  timedOut,
		}
	}
	return &Result{ExitCode: exitCode, Stdout: stdout}, nil
}

// captureBuffer collects the decoded line stream for callers that want
// the full merged output as a string (returned as Result.Stdout).
type captureBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// streamOutput reads the merged pty stream in a non-blocking line loop:
// decode as UTF-8 with replacement, split on line boundaries, hold a
// trailing partial line across reads, and dispatch each complete line to
// the log file / highlight rules / OnLine callback (§4.4).
func streamOutput(r io.Reader, logFile *os.File, capture io.Writer, opts Options) error {
	reader := bufio.NewReader(r)
	var partial []byte

	for {
		chunk := make([]byte, 4096)
		n, err := reader.Read(chunk)
		if n > 0 {
			partial = append(partial, chunk[:n]...)
			partial = emitLines(partial, logFile, capture, opts)
		}
		if err != nil {
			if len(partial) > 0 {
				emitLine(decodeUTF8(partial), logFile, capture, opts)
			}
			if err == io.EOF {
				return nil
			}
			// pty read on a closed slave surfaces as a generic I/O error; not fatal.
			return nil
		}
	}
}

func emitLines(buf []byte, logFile *os.File, capture io.Writer, opts Options) []byte {
	for {
		idx := indexByte(buf, '\n')
		if idx < 0 {
			return buf
		}
		line := buf[:idx]
		buf = buf[idx+1:]
		emitLine(decodeUTF8(line), logFile, capture, opts)
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	// Replace invalid sequences one rune at a time, matching Python's
	// errors='replace' semantics.
	var out []rune
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		out = append(out, r)
		b = b[size:]
	}
	return string(out)
}

func emitLine(line string, logFile *os.File, capture io.Writer, opts Options) {
	fmt.Fprintln(capture, line)
	if logFile != nil {
		fmt.Fprintln(logFile, stripANSI(line))
	}
	display := line
	for _, rule := range opts.Highlights {
		if rule.Pattern.MatchString(line) {
			display = rule.Pattern.ReplaceAllString(line, rule.Replacement)
			break
		}
	}
	if opts.LinePrefix != "" {
		display = opts.LinePrefix + display
	}
	if opts.OnLine != nil {
		opts.OnLine(display)
	} else if opts.Logger != nil {
		opts.Logger.Info("%s", display)
	}
}

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

func stripANSI(s string) string { return ansiPattern.ReplaceAllString(s, "") }

func resolveExecutable(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", &xerrors.ExecutableNotFoundError{Tool: name, Path: os.Getenv("PATH")}
		}
		return name, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &xerrors.ExecutableNotFoundError{Tool: name, Path: os.Getenv("PATH")}
	}
	return path, nil
}
