package dse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
)

// Spawner executes one WorkerTask and returns its WorkerResult. The
// production Spawner (ProcessSpawner) re-execs the running binary as an
// OS-level subprocess; InProcessSpawner calls a supplied function
// in-process, which the tests use with stub functions.
type Spawner interface {
	Spawn(ctx context.Context, task WorkerTask) (WorkerResult, error)
}

// ProcessSpawner re-execs SelfPath with WorkerFlag as its sole argument,
// feeding the task as JSON on stdin and reading one WorkerResult as JSON
// from stdout (§5: "a pool of OS-level worker processes ... each worker
// launches one Flow (which itself forks an external tool)" — process
// isolation, not goroutines, is required because the child EDA tool
// forks and because per-worker nthreads/environment must not leak
// between candidates).
type ProcessSpawner struct {
	SelfPath   string
	WorkerFlag string
}

func (p ProcessSpawner) Spawn(ctx context.Context, task WorkerTask) (WorkerResult, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return WorkerResult{}, fmt.Errorf("dse: encoding task %d: %w", task.Index, err)
	}

	cmd := exec.CommandContext(ctx, p.SelfPath, p.WorkerFlag)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return WorkerResult{Index: task.Index, Error: fmt.Sprintf("worker process: %v: %s", err, stderr.String())}, nil
	}

	var result WorkerResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return WorkerResult{Index: task.Index, Error: fmt.Sprintf("decoding worker result: %v", err)}, nil
	}
	return result, nil
}

// InProcessSpawner calls Run in-process, with no subprocess isolation.
// The tests use it with stub Run functions.
type InProcessSpawner struct {
	Run func(ctx context.Context, task WorkerTask) WorkerResult
}

func (s InProcessSpawner) Spawn(ctx context.Context, task WorkerTask) (WorkerResult, error) {
	return s.Run(ctx, task), nil
}

// Pool runs a batch of tasks with bounded concurrency, the Go-process
// counterpart to the teacher's channel-fed work queue in
// pkg/executor/parallel.go.
type Pool struct {
	Spawner    Spawner
	MaxWorkers int
}

// RunBatch dispatches every task to a worker. Workers finish in no
// particular order (§5), but the returned slice is in task order:
// results[i] holds the result of tasks[i], and each result also carries
// its task's Index.
func (p *Pool) RunBatch(ctx context.Context, tasks []WorkerTask) []WorkerResult {
	maxWorkers := p.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	sem := make(chan struct{}, maxWorkers)
	results := make([]WorkerResult, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task WorkerTask) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := p.Spawner.Spawn(ctx, task)
			if err != nil {
				res = WorkerResult{Index: task.Index, Error: err.Error()}
			}
			results[i] = res
		}(i, task)
	}
	wg.Wait()
	return results
}
