// Package group builds the identity -> segment -> record catalog from a
// stream of decoded record headers. Records join a segment when identity
// and quality match, rates agree within tolerance, and the gap to the
// previous record stays within one sample period plus the time tolerance.
package group

import (
	"sort"

	"github.com/seisflow/seisflow/internal/model"
)

// Options control segment grouping.
type Options struct {
	// TimeToleranceSeconds widens gap checks. Negative means automatic:
	// half the sample period of the record being placed.
	TimeToleranceSeconds float64

	// RateTolerance is the maximum relative sample-rate difference for two
	// records to share a segment.
	RateTolerance float64
}

// DefaultOptions returns the standard grouping tolerances.
func DefaultOptions() Options {
	return Options{
		TimeToleranceSeconds: -1,
		RateTolerance:        1e-4,
	}
}

// Tolerance returns the gap tolerance in ticks for a given rate.
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

// Build groups records into a catalog. Records are bucketed per identity
// and quality, time sorted (stably, so same-time records keep input order),
// and split into segments at rate changes and gaps. Zero-rate records form
// one non-timeseries pseudo-segment per bucket, excluded from pruning.
func Build(records []*model.RecordRef, opts Options) *model.Catalog {
	type bucketKey struct {
		identity string
		quality  model.Quality
	}

	buckets := make(map[bucketKey][]*model.RecordRef)
	var order []bucketKey
	for _, rec := range records {
		k := bucketKey{rec.Identity, rec.Quality}
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], rec)
	}

	catalog := model.NewCatalog()
	for _, k := range order {
		recs := buckets[k]

		var series, other []*model.RecordRef
		for _, rec := range recs {
			if rec.SampleRate <= 0 {
				other = append(other, rec)
			} else {
				series = append(series, rec)
			}
		}

		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Start < series[j].Start
		})

		var seg *model.Segment
		for _, rec := range series {
			if seg == nil || !joins(seg, rec, opts) {
				seg = &model.Segment{
					Identity:   rec.Identity,
					Quality:    rec.Quality,
					SampleRate: rec.SampleRate,
					Start:      rec.Start,
					End:        rec.End,
				}
				catalog.Add(seg)
			}
			seg.Records = append(seg.Records, rec)
			if rec.End > seg.End {
				seg.End = rec.End
			}
		}

		if len(other) > 0 {
			sort.SliceStable(other, func(i, j int) bool {
				return other[i].Start < other[j].Start
			})
			pseudo := &model.Segment{
				Identity:      k.identity,
				Quality:       k.quality,
				Start:         other[0].Start,
				End:           other[len(other)-1].End,
				NonTimeseries: true,
				Records:       other,
			}
			catalog.Add(pseudo)
		}
	}
	return catalog
}

// joins reports whether rec continues seg: rates within tolerance and the
// gap from the segment end within one sample period plus the tolerance.
func joins(seg *model.Segment, rec *model.RecordRef, opts Options) bool {
	if !opts.RatesMatch(seg.SampleRate, rec.SampleRate) {
		return false
	}
	tol := opts.Tolerance(rec.SampleRate)
	period := rec.Period()
	gap := rec.Start - seg.End
	if gap < 0 {
		gap = -gap
	}
	return gap <= period+tol
}
