package cotask

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// durationWindow is how many recent run durations feed the average.
const durationWindow = 256

// skipRuns excludes the first runs from duration statistics, they
// usually include one-time setup work.
const skipRuns = 2

// Stats summarizes a task's runs.
type Stats struct {
	Runs        uint64
	Failures    uint64
	Overruns    uint64
	AvgDuration time.Duration
	MaxDuration time.Duration
	StdDuration time.Duration
	AvgLate     time.Duration
	MaxLate     time.Duration
}

type recorder struct {
	runs     uint64
	overruns uint64

	durations []float64
	cursor    int
	seen      uint64
	maxDur    time.Duration

	lateSum   time.Duration
	lateCount uint64
	maxLate   time.Duration
}

func (r *recorder) addDuration(d time.Duration) {
	r.seen++
	if r.seen <= skipRuns {
		return
	}
	if d > r.maxDur {
		r.maxDur = d
	}
	if len(r.durations) < durationWindow {
		r.durations = append(r.durations, float64(d))
		return
	}
	r.durations[r.cursor] = float64(d)
	r.cursor = (r.cursor + 1) % durationWindow
}

func (r *recorder) addLateness(d time.Duration) {
	r.lateSum += d
	r.lateCount++
	if d > r.maxLate {
		r.maxLate = d
	}
}

func (r *recorder) reset() {
	*r = recorder{}
}

func (r *recorder) snapshot() Stats {
	s := Stats{
		Runs:        r.runs,
		Overruns:    r.overruns,
		MaxDuration: r.maxDur,
		MaxLate:     r.maxLate,
	}
	if n := len(r.durations); n > 0 {
		mean, std := stat.MeanStdDev(r.durations, nil)
		if n == 1 || math.IsNaN(std) {
			std = 0
		}
		s.AvgDuration = time.Duration(mean)
		s.StdDuration = time.Duration(std)
	}
	if r.lateCount > 0 {
		s.AvgLate = r.lateSum / time.Duration(r.lateCount)
	}
	return s
}
