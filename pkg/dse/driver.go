package dse

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/xedahq/xeda/internal/xlog"
	"github.com/xedahq/xeda/pkg/runpath"
)

// Driver runs the DSE loop of §4.9: repeatedly ask the Optimizer for a
// batch, dispatch it across the worker Pool, fold outcomes back into the
// Optimizer, and persist the best-so-far result, until a stop criterion
// fires.
type Driver struct {
	Pool      *Pool
	Optimizer Optimizer
	Logger    *xlog.Logger
	Load      LoadSampler

	// BestResultPath is where the atomic best-so-far JSON is written
	// after every improvement (§6 "Fmax best-result file").
	BestResultPath string
}

// Result is what Driver.Run returns: the optimizer's final best outcome
// plus iteration bookkeeping.
type Result struct {
	Best                  *FlowOutcome
	NumIterations         int
	ConsecutiveFailedIters int
	TotalTime             time.Duration
}

type bestResultDoc struct {
	Best                   *FlowOutcome `json:"best"`
	SuccessfulResults      []map[string]interface{} `json:"successful_results"`
	TotalTimeSeconds       float64      `json:"total_time_seconds"`
	NumIterations          int          `json:"num_iterations"`
	ConsecutiveFailedIters int          `json:"consecutive_failed_iters"`
}

// Run executes the loop described in §4.9 step 3-5, returning once the
// optimizer signals exhaustion or a stop criterion fires. ctx
// cancellation (e.g. on SIGINT at the CLI layer) stops the pool and
// returns immediately, mirroring the source's KeyboardInterrupt handling.
func (d *Driver) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	start := time.Now()
	var successfulResults []map[string]interface{}
	seenHashes := map[string]bool{}

	numIterations := 0
	consecutiveFailedIters := 0

	for {
		select {
		case <-ctx.Done():
			return d.finish(start, numIterations, consecutiveFailedIters), ctx.Err()
		default:
		}

		d.logLoad()

		if cfg.Stop.MaxRuntimeMinutes > 0 && time.Since(start) > time.Duration(cfg.Stop.MaxRuntimeMinutes)*time.Minute {
			d.Logger.Info("stopping: max_runtime_minutes exceeded")
			break
		}
		if consecutiveFailedIters > cfg.Stop.MaxFailedIters {
			d.Logger.Info("stopping after %d unsuccessful iterations", consecutiveFailedIters)
			break
		}
		if d.Optimizer.Best() != nil && consecutiveFailedIters > cfg.Stop.MaxFailedItersWithBest {
			d.Logger.Info("stopping after %d unsuccessful iterations (have a best result)", consecutiveFailedIters)
			break
		}

		batch := d.Optimizer.NextBatch()
		if len(batch) == 0 {
			break
		}

		tasks := dedupeAndBuildTasks(batch, seenHashes, cfg)
		if len(tasks) == 0 {
			// every candidate in this batch was a duplicate; ask again
			// rather than spinning forever on an optimizer bug.
			consecutiveFailedIters++
			numIterations++
			continue
		}
		if len(tasks) > cfg.MaxWorkers {
			tasks = tasks[:cfg.MaxWorkers]
		}

		d.Logger.Info("iteration #%d: %d parallel executions", numIterations, len(tasks))

		batchCtx, cancel := taskDeadline(ctx, cfg.PerTaskTimeout)
		results := d.Pool.RunBatch(batchCtx, tasks)
		cancel()

		haveSuccess := false
		for _, r := range results {
			if r.Error != "" {
				d.Logger.Warn("flow #%d: %s", r.Index, r.Error)
				continue
			}
			if r.Outcome == nil {
				d.Logger.Error("flow #%d: outcome is nil", r.Index)
				continue
			}
			improved := d.Optimizer.ProcessOutcome(r.Outcome, r.Index)
			if improved {
				d.persistBest(numIterations, consecutiveFailedIters, successfulResults, time.Since(start))
			}
			if r.Outcome.Results.Success {
				haveSuccess = true
				successfulResults = append(successfulResults, r.Outcome.SettingsSnapshot)
			}
			if !cfg.KeepOptimalRunDirs && !improved && r.Outcome.RunPath != "" {
				_ = os.RemoveAll(r.Outcome.RunPath)
			}
		}

		if haveSuccess {
			consecutiveFailedIters = 0
		} else {
			consecutiveFailedIters++
		}
		numIterations++
	}

	return d.finish(start, numIterations, consecutiveFailedIters), nil
}

func (d *Driver) finish(start time.Time, numIterations, consecutiveFailedIters int) *Result {
	return &Result{
		Best:                   d.Optimizer.Best(),
		NumIterations:          numIterations,
		ConsecutiveFailedIters: consecutiveFailedIters,
		TotalTime:              time.Since(start),
	}
}

func (d *Driver) persistBest(numIterations, consecutiveFailedIters int, successfulResults []map[string]interface{}, elapsed time.Duration) {
	if d.BestResultPath == "" {
		return
	}
	doc := bestResultDoc{
		Best:                   d.Optimizer.Best(),
		SuccessfulResults:      successfulResults,
		TotalTimeSeconds:       elapsed.Seconds(),
		NumIterations:          numIterations,
		ConsecutiveFailedIters: consecutiveFailedIters,
	}
	if err := runpath.AtomicWriteJSON(d.BestResultPath, doc); err != nil {
		d.Logger.Warn("writing best-result file: %v", err)
	} else {
		d.Logger.Info("wrote improved result to %s", d.BestResultPath)
	}
}

func (d *Driver) logLoad() {
	if d.Load == nil {
		return
	}
	sample, err := d.Load.Sample()
	if err != nil {
		return
	}
	d.Logger.Verbose("load avg (1,5,15)=%.2f,%.2f,%.2f goroutines=%d heap_mb=%.1f",
		sample.Load1, sample.Load5, sample.Load15, sample.Goroutines, sample.HeapAllocMB)
}

func dedupeAndBuildTasks(batch []map[string]interface{}, seen map[string]bool, cfg RunConfig) []WorkerTask {
	var tasks []WorkerTask
	for i, settings := range batch {
		h := settingsHash(settings)
		if seen[h] {
			continue
		}
		seen[h] = true
		tasks = append(tasks, WorkerTask{
			Index:    i,
			FlowName: cfg.FlowName,
			Design:   cfg.Design,
			Settings: settings,
			RunRoot:  "",
		})
	}
	return tasks
}

// settingsHash is the lightweight deduplication hash for candidate
// settings (§4.9 step 3 "de-duplicate by hashing each candidate's
// settings"), distinct from pkg/fingerprint's canonical content hash
// which is reserved for cache identity.
func settingsHash(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		data, _ := json.Marshal(m[k])
		fmt.Fprintf(h, "%s=%s;", k, data)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
