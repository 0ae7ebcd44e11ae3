package dse

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// LoadSample is one CPU/RAM diagnostic reading (§4.9 step 3 "Record
// CPU/RAM load for diagnostics", §12 supplemented feature).
type LoadSample struct {
	Load1, Load5, Load15 float64
	Goroutines           int
	HeapAllocMB          float64
}

// LoadSampler reports a point-in-time resource snapshot. Implementations
// are best-effort: a DSE run never fails because diagnostics are
// unavailable.
type LoadSampler interface {
	Sample() (LoadSample, error)
}

// ProcLoadSampler reads /proc/loadavg (Linux) and combines it with the Go
// runtime's own goroutine/heap counters, grounded on
// original_source/.../dse_runner.py's per-iteration psutil.getloadavg()
// + psutil.virtual_memory() logging, adapted to stdlib since no
// resource-monitoring library appears anywhere in the retrieved corpus.
type ProcLoadSampler struct{}

func (ProcLoadSampler) Sample() (LoadSample, error) {
	var sample LoadSample
	sample.Goroutines = runtime.NumGoroutine()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	sample.HeapAllocMB = float64(mem.HeapAlloc) / (1024 * 1024)

	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return sample, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return sample, nil
	}
	sample.Load1, _ = strconv.ParseFloat(fields[0], 64)
	sample.Load5, _ = strconv.ParseFloat(fields[1], 64)
	sample.Load15, _ = strconv.ParseFloat(fields[2], 64)
	return sample, nil
}
