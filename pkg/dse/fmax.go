package dse

import (
	"math/rand"

	"github.com/xedahq/xeda/pkg/design"
)

// FmaxSettings configures the Fmax search window and heuristics
// (§4.9.1), grounded on
// original_source/.../flow_runner/dse/fmax.py's FmaxOptimizer.Settings.
type FmaxSettings struct {
	InitFreqLow, InitFreqHigh float64
	MaxLUTs                   int // 0 means unset
	InitNumVariations         int
	Delta                     float64
	Resolution                float64
	MinFreqStep               float64
	VariationMinImprov        float64
}

// DefaultFmaxSettings mirrors fmax.py's field defaults.
func DefaultFmaxSettings(initFreqLow, initFreqHigh float64) FmaxSettings {
	return FmaxSettings{
		InitFreqLow:        initFreqLow,
		InitFreqHigh:       initFreqHigh,
		InitNumVariations:  1,
		Delta:              0.001,
		Resolution:         0.2,
		MinFreqStep:        0.02,
		VariationMinImprov: 2.0,
	}
}

// variationAxis is one settings key with an ordered list of candidate
// values; ProcessOutcome promotes the chosen value to the front when it
// turns out to be part of an improving candidate, so future batches
// prefer it (§4.9.1 process_outcome).
type variationAxis struct {
	key    string
	values []string
}

func (a *variationAxis) promote(idx int) {
	if idx <= 0 || idx >= len(a.values) {
		return
	}
	v := a.values[idx]
	a.values = append(a.values[:idx], a.values[idx+1:]...)
	a.values = append([]string{v}, a.values...)
}

// FmaxOptimizer implements Optimizer for maximum-frequency search: it
// narrows a [lo_freq, hi_freq] window toward the highest clock frequency
// that still meets timing, trying multiple synthesis/implementation
// strategy variations per frequency point.
type FmaxOptimizer struct {
	settings     FmaxSettings
	maxWorkers   int
	baseSettings map[string]interface{}
	variations   []*variationAxis

	loFreq, hiFreq   float64
	numVariations    int
	noImprovements   int
	lastImprovement  float64
	numIterations    int
	lastBestFreq     float64
	improvedIdx      *int
	failedFmax       *float64
	best             *FlowOutcome
	variationChoices []map[string]int
	batchHashes      map[string]bool
	rng              *rand.Rand
}

// NewFmaxOptimizer constructs a search starting at settings.InitFreqLow/
// High with baseSettings as the common settings tier every candidate
// starts from, and variations as the named strategy axes to sample.
func NewFmaxOptimizer(maxWorkers int, settings FmaxSettings, baseSettings map[string]interface{}, variations map[string][]string, seed int64) *FmaxOptimizer {
	var axes []*variationAxis
	for k, v := range variations {
		if len(v) == 0 {
			continue
		}
		cp := make([]string, len(v))
		copy(cp, v)
		axes = append(axes, &variationAxis{key: k, values: cp})
	}
	return &FmaxOptimizer{
		settings:      settings,
		maxWorkers:    maxWorkers,
		baseSettings:  baseSettings,
		variations:    axes,
		loFreq:        settings.InitFreqLow,
		hiFreq:        settings.InitFreqHigh,
		numVariations: settings.InitNumVariations,
		batchHashes:   map[string]bool{},
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Best implements Optimizer.
func (o *FmaxOptimizer) Best() *FlowOutcome { return o.best }

func getFmax(outcome *FlowOutcome) (float64, bool) {
	if outcome == nil || outcome.Results == nil || outcome.Results.FlowSpecific == nil {
		return 0, false
	}
	v, ok := outcome.Results.FlowSpecific["Fmax"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (o *FmaxOptimizer) bestFreq() (float64, bool) {
	return getFmax(o.best)
}

// updateBounds narrows or expands [lo_freq, hi_freq] based on the
// previous iteration's outcome, returning false to stop the search
// (§4.9.1 update_bounds).
func (o *FmaxOptimizer) updateBounds() bool {
	if o.numIterations == 0 {
		return true
	}

	resolution := o.settings.Resolution
	delta := o.settings.Delta
	bestFreq, haveBest := o.bestFreq()

	if o.hiFreq-o.loFreq < resolution && o.noImprovements > 1 {
		return false
	}

	if haveBest || (o.failedFmax != nil && *o.failedFmax > o.loFreq) {
		switch {
		case o.improvedIdx == nil || (o.lastImprovement != 0 && o.lastImprovement < o.settings.VariationMinImprov):
			o.numVariations++
		case o.improvedIdx != nil && (*o.improvedIdx > (o.maxWorkers+1)/2 || o.lastImprovement > 2*o.settings.VariationMinImprov):
			if o.numVariations > 1 {
				o.numVariations--
			}
		}
	}

	if haveBest {
		epsilon := delta + o.rng.Float64()*maxFloat(delta, resolution/float64(o.numVariations+2)-delta)
		o.loFreq = bestFreq + epsilon
	}

	if o.improvedIdx == nil {
		o.noImprovements++
		switch {
		case haveBest && bestFreq < o.hiFreq:
			if o.numVariations > 1 && o.noImprovements < 3 {
				o.hiFreq += float64((o.maxWorkers+1)) * resolution / float64(o.numVariations)
			} else {
				o.hiFreq = (o.hiFreq+bestFreq)/2 + delta
			}
		case haveBest:
			o.hiFreq = bestFreq + float64(o.numVariations)*resolution
		default:
			if o.hiFreq <= resolution {
				return false
			}
			if o.failedFmax == nil {
				return false
			}
			o.loFreq = *o.failedFmax / (float64(o.noImprovements)*o.rng.Float64() + 1)
			o.hiFreq = o.loFreq + float64(o.maxWorkers)*resolution*(0.75+0.25*o.rng.Float64()) + delta
		}
	} else {
		o.noImprovements = 0
		if o.lastBestFreq != 0 {
			o.lastImprovement = bestFreq - o.lastBestFreq
		}
		o.lastBestFreq = bestFreq
		if bestFreq >= o.hiFreq {
			o.hiFreq = bestFreq + maxFloat(resolution, o.settings.MinFreqStep)*float64(o.maxWorkers)
		} else {
			o.hiFreq = (o.hiFreq+bestFreq)/2 + float64(o.numVariations)*resolution
		}
	}

	return true
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// NextBatch implements Optimizer (§4.9.1 next_batch).
func (o *FmaxOptimizer) NextBatch() []map[string]interface{} {
	if !o.updateBounds() {
		return nil
	}

	n := o.maxWorkers
	if o.numVariations > 1 {
		n = (n + o.numVariations - 1) / o.numVariations
	}
	if o.hiFreq <= 0 || o.loFreq < 0 {
		return nil
	}

	var batch []map[string]interface{}
	o.variationChoices = nil
	maxVar := 0
	for len(batch) < o.maxWorkers {
		maxVar++
		if maxVar > o.numVariations {
			o.loFreq += o.rng.Float64() * o.settings.Delta / 2
			o.hiFreq += (o.settings.Delta + o.rng.Float64()*(o.settings.Resolution-o.settings.Delta)) / 2
		}

		frequencies := linspace(o.loFreq, o.hiFreq, n)
		added := false
		for _, freq := range frequencies {
			if freq <= 0 {
				continue
			}
			choiceIndices := map[string]int{}
			settings := cloneSettings(o.baseSettings)
			settings["clock_period"] = design.ClockPeriodNsFromFreqMHz(freq)
			for _, axis := range o.variations {
				choice := o.randChoice(len(axis.values), maxVar)
				choiceIndices[axis.key] = choice
				settings[axis.key] = axis.values[choice]
			}
			h := settingsHash(settings)
			if o.batchHashes[h] {
				continue
			}
			o.batchHashes[h] = true
			o.variationChoices = append(o.variationChoices, choiceIndices)
			batch = append(batch, settings)
			added = true
			if len(batch) >= o.maxWorkers {
				break
			}
		}
		if !added && maxVar > o.numVariations+3 {
			break // avoid an infinite loop if every candidate is a dupe
		}
	}

	o.improvedIdx = nil
	o.numIterations++
	return batch
}

// randChoice biases toward earlier (better-ranked) entries as the
// variation pass var increases, matching fmax.py's rand_choice.
func (o *FmaxOptimizer) randChoice(listLen, v int) int {
	if o.numVariations <= 1 || listLen <= 1 {
		return 0
	}
	choiceMax := int(float64(listLen-1)*float64(v)+o.rng.Float64()) / o.numVariations
	if choiceMax > listLen-1 {
		choiceMax = listLen - 1
	}
	if choiceMax < 0 {
		choiceMax = 0
	}
	return o.rng.Intn(choiceMax + 1)
}

// ProcessOutcome implements Optimizer (§4.9.1 process_outcome).
func (o *FmaxOptimizer) ProcessOutcome(outcome *FlowOutcome, idx int) bool {
	bestFreq, haveBest := o.bestFreq()
	fmax, haveFmax := getFmax(outcome)

	if haveFmax && outcome.Results != nil && !outcome.Results.Success {
		if !haveBest || fmax > bestFreq {
			if o.failedFmax == nil || fmax > *o.failedFmax {
				f := fmax
				o.failedFmax = &f
			}
		}
		return false
	}

	if !haveFmax {
		return false
	}

	if o.settings.MaxLUTs > 0 {
		if lutRaw, ok := outcome.Results.FlowSpecific["lut"]; ok {
			if lut, ok := toInt(lutRaw); ok && lut > o.settings.MaxLUTs {
				return false
			}
		}
	}

	if !haveBest || fmax > bestFreq {
		o.best = outcome
		o.baseSettings = outcome.SettingsSnapshot
		o.improvedIdx = &idx
		if o.numVariations > 1 && idx < len(o.variationChoices) {
			for key, choice := range o.variationChoices[idx] {
				for _, axis := range o.variations {
					if axis.key == key {
						axis.promote(choice)
					}
				}
			}
		}
		return true
	}
	return false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func cloneSettings(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// linspace returns n points evenly spaced across [a, b] inclusive,
// matching fmax.py's linspace (n<2 degenerates to [b]).
func linspace(a, b float64, n int) []float64 {
	if n < 2 {
		return []float64{b}
	}
	step := (b - a) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = a + step*float64(i)
	}
	return out
}
