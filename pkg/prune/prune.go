// Package prune implements overlap resolution: for each segment it finds
// the time ranges shadowed by higher-priority data and marks or clips the
// affected records.
package prune

import (
	"github.com/seisflow/seisflow/internal/model"
)

// PriorityMode selects how overlapping segments are ranked.
type PriorityMode int

const (
	// PriorityBest ranks by quality code first, duration second.
	PriorityBest PriorityMode = iota

	// PriorityAllEqual ignores quality; the longer segment always wins.
	PriorityAllEqual
)

// Mode selects the trimming granularity.
type Mode int

const (
	// ModeRecord omits fully-covered records and never clips.
	ModeRecord Mode = iota

	// ModeSample additionally clips partially-covered records to exact
	// sample boundaries.
	ModeSample

	// ModeEdges ignores coverage and clips every record to the global
	// selection window only.
	ModeEdges
)

func (m Mode) String() string {
	switch m {
	case ModeRecord:
		return "record"
	case ModeSample:
		return "sample"
	case ModeEdges:
		return "edges"
	default:
		return "unknown"
	}
}

// Options is the explicit pruning configuration threaded through every
// component call.
type Options struct {
	Mode     Mode
	Priority PriorityMode

	// TimeToleranceSeconds is the boundary tolerance. Negative means
	// automatic: half the nominal sample period of the target segment.
	TimeToleranceSeconds float64

	// RateTolerance is the maximum relative rate difference for two
	// segments to shadow each other.
	RateTolerance float64

	// Global clip window for ModeEdges.
	SelectStart    model.Tick
	SelectEnd      model.Tick
	HasSelectStart bool
	HasSelectEnd   bool
}

// DefaultOptions returns the standard pruning configuration.
func DefaultOptions() Options {
	return Options{
		Mode:                 ModeSample,
		Priority:             PriorityBest,
		TimeToleranceSeconds: -1,
		RateTolerance:        1e-4,
	}
}

// Tolerance returns the boundary tolerance in ticks for a sample rate.
func (o Options) Tolerance(rate float64) model.Tick {
	if o.TimeToleranceSeconds >= 0 {
		return model.Tick(o.TimeToleranceSeconds * float64(model.TicksPerSecond))
	}
	return model.PeriodForRate(rate) / 2
}

// RatesMatch applies the relative rate tolerance test.
func (o Options) RatesMatch(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	max := a
	if b > max {
		max = b
	}
	if max < 0 {
		max = -max
	}
	return diff <= o.RateTolerance*max
}

// Prune resolves coverage and trims every timeseries segment in the
// catalog. Returns the total number of record modifications.
func Prune(catalog *model.Catalog, opts Options) (int, error) {
	mods := 0
	for _, seg := range catalog.Segments {
		if seg.NonTimeseries {
			continue
		}
		var coverage []Interval
		if opts.Mode != ModeEdges {
			coverage = ResolveCoverage(seg, catalog.Peers(seg.Identity), opts)
		}
		n, err := TrimSegment(seg, coverage, opts)
		if err != nil {
			return mods, err
		}
		mods += n
	}
	return mods, nil
}
