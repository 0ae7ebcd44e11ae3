package dse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xedahq/xeda/internal/xlog"
	"github.com/xedahq/xeda/pkg/flow"
)

// countingOptimizer emits a fixed number of batches then stops, tracking
// every ProcessOutcome call for assertions.
type countingOptimizer struct {
	batchesLeft int
	batchSize   int
	processed   []int
	best        *FlowOutcome
}

func (o *countingOptimizer) NextBatch() []map[string]interface{} {
	if o.batchesLeft <= 0 {
		return nil
	}
	o.batchesLeft--
	batch := make([]map[string]interface{}, o.batchSize)
	for i := range batch {
		batch[i] = map[string]interface{}{"candidate": i, "batch": o.batchesLeft}
	}
	return batch
}

func (o *countingOptimizer) ProcessOutcome(outcome *FlowOutcome, idx int) bool {
	o.processed = append(o.processed, idx)
	fmax, _ := getFmax(outcome)
	if o.best == nil || fmax > 0 {
		o.best = outcome
		return true
	}
	return false
}

func (o *countingOptimizer) Best() *FlowOutcome { return o.best }

func TestDriverRunsUntilOptimizerExhausted(t *testing.T) {
	opt := &countingOptimizer{batchesLeft: 3, batchSize: 2}
	pool := &Pool{Spawner: echoSpawner(), MaxWorkers: 2}
	d := &Driver{Pool: pool, Optimizer: opt, Logger: xlog.New(xlog.LevelQuiet)}

	res, err := d.Run(context.Background(), RunConfig{
		FlowName:   "f",
		MaxWorkers: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.NumIterations)
	require.Len(t, opt.processed, 6)
}

func TestDriverStopsOnMaxFailedIters(t *testing.T) {
	failing := InProcessSpawner{Run: func(ctx context.Context, task WorkerTask) WorkerResult {
		return WorkerResult{Index: task.Index, Outcome: &FlowOutcome{Results: &flow.Results{Success: false}}}
	}}
	opt := &countingOptimizer{batchesLeft: 100, batchSize: 1}
	pool := &Pool{Spawner: failing, MaxWorkers: 1}
	d := &Driver{Pool: pool, Optimizer: opt, Logger: xlog.New(xlog.LevelQuiet)}

	res, err := d.Run(context.Background(), RunConfig{
		FlowName:   "f",
		MaxWorkers: 1,
		Stop:       StopCriteria{MaxFailedIters: 2, MaxFailedItersWithBest: 10},
	})
	require.NoError(t, err)
	require.LessOrEqual(t, res.NumIterations, 100)
	require.Greater(t, res.ConsecutiveFailedIters, 2)
}

func TestDriverContextCancellationStopsImmediately(t *testing.T) {
	opt := &countingOptimizer{batchesLeft: 1000, batchSize: 1}
	pool := &Pool{Spawner: echoSpawner(), MaxWorkers: 1}
	d := &Driver{Pool: pool, Optimizer: opt, Logger: xlog.New(xlog.LevelQuiet)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Run(ctx, RunConfig{FlowName: "f", MaxWorkers: 1})
	require.Error(t, err)
	require.Equal(t, 0, res.NumIterations)
}
