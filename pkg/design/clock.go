package design

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PhysicalClock describes one named clock port with its timing
// characteristics. freq_mhz and period_ns are reconciled at construction
// so that freq_mhz * period_ns == 1000 always holds.
type PhysicalClock struct {
	Name         string
	Port         string
	PeriodNs     float64
	FreqMHz      float64
	RiseNs       float64
	DutyCycle    float64 // (0, 1)
	UncertaintyNs float64
	SkewNs       float64
}

var unitPattern = regexp.MustCompile(`(?i)^\s*([0-9]*\.?[0-9]+)\s*(ps|ns|us|ms|s|hz|khz|mhz|ghz)?\s*$`)

// ParseClockValue accepts human-readable period/frequency strings such as
// "1.5ns" or "200MHz" and returns (period_ns, freq_mhz).
func ParseClockValue(s string) (periodNs, freqMHz float64, err error) {
	m := unitPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("design: cannot parse clock value %q", s)
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("design: cannot parse clock value %q: %w", s, err)
	}
	unit := strings.ToLower(m[2])
	switch unit {
	case "", "ns":
		periodNs = val
	case "ps":
		periodNs = val / 1000
	case "us":
		periodNs = val * 1000
	case "ms":
		periodNs = val * 1_000_000
	case "s":
		periodNs = val * 1_000_000_000
	case "hz":
		freqMHz = val / 1_000_000
		periodNs = 1000 / freqMHz
		return periodNs, freqMHz, nil
	case "khz":
		freqMHz = val / 1000
		periodNs = 1000 / freqMHz
		return periodNs, freqMHz, nil
	case "mhz":
		freqMHz = val
		periodNs = 1000 / freqMHz
		return periodNs, freqMHz, nil
	case "ghz":
		freqMHz = val * 1000
		periodNs = 1000 / freqMHz
		return periodNs, freqMHz, nil
	default:
		return 0, 0, fmt.Errorf("design: unknown clock unit %q", unit)
	}
	freqMHz = 1000 / periodNs
	return periodNs, freqMHz, nil
}

// NewPhysicalClock builds a clock from a name, port and a human-readable
// period/frequency string, reconciling period and frequency.
func NewPhysicalClock(name, port, value string) (*PhysicalClock, error) {
	periodNs, freqMHz, err := ParseClockValue(value)
	if err != nil {
		return nil, err
	}
	return &PhysicalClock{
		Name:      name,
		Port:      port,
		PeriodNs:  periodNs,
		FreqMHz:   freqMHz,
		DutyCycle: 0.5,
	}, nil
}

// ClockPeriodNsFromFreqMHz converts a target frequency to a clock period
// in nanoseconds, rounded to picosecond resolution — the conversion the
// Fmax optimizer performs when sampling candidate frequencies (§4.9.1).
func ClockPeriodNsFromFreqMHz(freqMHz float64) float64 {
	periodPs := 1_000_000 / freqMHz
	roundedPs := float64(int64(periodPs+0.5)) * 1
	return roundedPs / 1000
}
