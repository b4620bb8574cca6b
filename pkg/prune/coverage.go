package prune

import (
	"sort"

	"github.com/seisflow/seisflow/internal/model"
)

// Interval is one merged time range shadowed by higher-priority data.
// Transient: produced while resolving one target segment, discarded after
// that segment is trimmed.
type Interval struct {
	Start      model.Tick
	End        model.Tick
	Quality    model.Quality
	SampleRate float64
}

// ResolveCoverage scans the target's peer segments for higher-priority
// overlapping data and returns a merged, non-overlapping interval list.
// An empty result means nothing shadows the target.
func ResolveCoverage(target *model.Segment, peers []*model.Segment, opts Options) []Interval {
	tol := opts.Tolerance(target.SampleRate)
	period := target.Period()

	var intervals []Interval
	for _, peer := range peers {
		if peer == target || peer.NonTimeseries {
			continue
		}
		if !opts.RatesMatch(peer.SampleRate, target.SampleRate) {
			continue
		}
		if peer.End < target.Start-tol || peer.Start > target.End+tol {
			continue
		}
		if !outranks(peer, target, opts.Priority) {
			continue
		}

		// Walk the peer's records in time order, extending the running
		// interval while the gap stays within one sample period plus
		// tolerance.
		peerPeriod := peer.Period()
		last := -1
		for _, rec := range peer.Records {
			if rec.State == model.StateOmitted {
				continue
			}
			start := rec.EffectiveStart()
			end := rec.EffectiveEnd()
			if last >= 0 && start-intervals[last].End <= peerPeriod+tol {
				if end > intervals[last].End {
					intervals[last].End = end
				}
				continue
			}
			intervals = append(intervals, Interval{
				Start:      start,
				End:        end,
				Quality:    peer.Quality,
				SampleRate: peer.SampleRate,
			})
			last = len(intervals) - 1
		}
	}

	return normalize(intervals, period+tol)
}

// normalize sorts intervals and merges any that overlap or sit within the
// merge gap, so coverage from multiple peers never overlaps itself.
func normalize(intervals []Interval, mergeGap model.Tick) []Interval {
	if len(intervals) < 2 {
		return intervals
	}
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start != intervals[j].Start {
			return intervals[i].Start < intervals[j].Start
		}
		return intervals[i].End > intervals[j].End
	})

	out := intervals[:1]
	for _, iv := range intervals[1:] {
		tail := &out[len(out)-1]
		if iv.Start-tail.End <= mergeGap {
			if iv.End > tail.End {
				tail.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// outranks reports whether peer shadows target. The order is total and
// deterministic: quality rank (best mode only), then longer duration, then
// earlier start, then lower catalog index.
func outranks(peer, target *model.Segment, mode PriorityMode) bool {
	if mode == PriorityBest {
		pr, tr := peer.Quality.Rank(), target.Quality.Rank()
		if pr != tr {
			return pr > tr
		}
	}
	if peer.Duration() != target.Duration() {
		return peer.Duration() > target.Duration()
	}
	if peer.Start != target.Start {
		return peer.Start < target.Start
	}
	return peer.Index < target.Index
}
