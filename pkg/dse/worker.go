package dse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xedahq/xeda/pkg/design"
	"github.com/xedahq/xeda/pkg/launcher"
)

// WorkerTask is the JSON payload sent to a worker subprocess over stdin:
// one candidate's full launch request. The Design is shipped inline
// rather than re-read from disk so a worker never needs project-file
// discovery logic of its own (§5: workers are stateless w.r.t. the
// optimizer, each just returns one FlowOutcome).
type WorkerTask struct {
	Index    int                    `json:"index"`
	FlowName string                 `json:"flow_name"`
	Design   *design.Design         `json:"design"`
	Settings map[string]interface{} `json:"settings"`
	RunRoot  string                 `json:"run_root"`
}

// WorkerResult is the JSON payload a worker subprocess writes to stdout.
type WorkerResult struct {
	Index   int          `json:"index"`
	Outcome *FlowOutcome `json:"outcome,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// RunWorkerTask performs one candidate's Launcher invocation per the
// Executioner contract (§4.9): every error Launch returns, FlowFatalError
// included, becomes the result's Error string, which the Driver logs
// before going on with the rest of the batch.
func RunWorkerTask(ctx context.Context, task WorkerTask, l *launcher.Launcher) WorkerResult {
	res, err := l.Launch(ctx, task.FlowName, task.Design, task.Settings, launcher.LaunchOptions{})
	if err != nil {
		return WorkerResult{Index: task.Index, Error: err.Error()}
	}
	return WorkerResult{
		Index: task.Index,
		Outcome: &FlowOutcome{
			SettingsSnapshot: task.Settings,
			Results:          res.Results,
			Timestamp:        res.Results.Timestamp,
			RunPath:          res.RunPath,
		},
	}
}

// ServeWorker is the body of the hidden worker subcommand: decode one
// WorkerTask from in, run it, encode the WorkerResult to out. Used by
// cmd/xeda's re-exec entrypoint.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, l *launcher.Launcher) error {
	var task WorkerTask
	if err := json.NewDecoder(in).Decode(&task); err != nil {
		return fmt.Errorf("dse: decoding worker task: %w", err)
	}
	result := RunWorkerTask(ctx, task, l)
	return json.NewEncoder(out).Encode(result)
}

// taskDeadline bounds a single worker invocation when PerTaskTimeout > 0.
func taskDeadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
