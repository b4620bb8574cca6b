package prune

import (
	"sort"

	"github.com/seisflow/seisflow/internal/model"
)

// TrimSegment decides per record whether it is kept, omitted, or clipped
// to a window, based on the segment's coverage intervals (or, in edges
// mode, the global selection window). Returns the number of records
// modified.
func TrimSegment(target *model.Segment, coverage []Interval, opts Options) (int, error) {
	if opts.Mode == ModeEdges {
		return trimEdges(target, opts), nil
	}
	if len(coverage) == 0 {
		return 0, nil
	}

	tol := opts.Tolerance(target.SampleRate)
	mods := 0
	for _, rec := range target.Records {
		if rec.State == model.StateOmitted {
			continue
		}
		if trimRecord(rec, coverage, tol, opts.Mode) {
			mods++
		}
	}

	if mods > 0 {
		restoreOrder(target)
	}
	return mods, nil
}

// trimRecord applies every intersecting coverage interval to one record.
func trimRecord(rec *model.RecordRef, coverage []Interval, tol model.Tick, mode Mode) bool {
	modified := false
	for i := range coverage {
		iv := &coverage[i]
		effStart := rec.EffectiveStart()
		effEnd := rec.EffectiveEnd()

		if iv.Start-tol > effEnd || iv.End+tol < effStart {
			continue
		}

		if contained(rec, iv, tol) {
			rec.State = model.StateOmitted
			return true
		}

		if mode != ModeSample || rec.IsPoint() {
			continue
		}

		period := rec.Period()
		if effStart < iv.Start && effEnd >= iv.Start-tol {
			rec.Clip.TightenEnd(iv.Start - period + tol)
			rec.State = model.StateClipped
			modified = true
		}
		if effEnd > iv.End && effStart <= iv.End+tol {
			rec.Clip.TightenStart(iv.End + period - tol)
			rec.State = model.StateClipped
			modified = true
		}

		effStart = rec.EffectiveStart()
		effEnd = rec.EffectiveEnd()
		if effStart >= effEnd-tol {
			// Collapsed - unless this is a genuine point record sitting on
			// a boundary, which must not be spuriously dropped.
			if !(rec.IsPoint() && effStart == effEnd) {
				rec.State = model.StateOmitted
				return true
			}
		}
	}
	return modified
}

// contained applies the full-containment test. Point records use strict
// bounds so a point sitting exactly on a coverage boundary survives.
func contained(rec *model.RecordRef, iv *Interval, tol model.Tick) bool {
	effStart := rec.EffectiveStart()
	effEnd := rec.EffectiveEnd()
	if rec.IsPoint() {
		return effStart > iv.Start && effEnd < iv.End
	}
	return effStart >= iv.Start-tol && effEnd <= iv.End+tol
}

// trimEdges clips every record to the global selection window, ignoring
// coverage entirely.
func trimEdges(target *model.Segment, opts Options) int {
	if !opts.HasSelectStart && !opts.HasSelectEnd {
		return 0
	}
	mods := 0
	for _, rec := range target.Records {
		if rec.State == model.StateOmitted {
			continue
		}
		effStart := rec.EffectiveStart()
		effEnd := rec.EffectiveEnd()

		if opts.HasSelectStart && effEnd < opts.SelectStart {
			rec.State = model.StateOmitted
			mods++
			continue
		}
		if opts.HasSelectEnd && effStart > opts.SelectEnd {
			rec.State = model.StateOmitted
			mods++
			continue
		}

		changed := false
		if opts.HasSelectStart && effStart < opts.SelectStart {
			rec.Clip.TightenStart(opts.SelectStart)
			changed = true
		}
		if opts.HasSelectEnd && effEnd > opts.SelectEnd {
			rec.Clip.TightenEnd(opts.SelectEnd)
			changed = true
		}
		if changed {
			rec.State = model.StateClipped
			mods++
		}
	}
	if mods > 0 {
		restoreOrder(target)
	}
	return mods
}

// restoreOrder re-establishes the segment invariant: records ascend by
// effective start time. Clipping can only move starts forward, so the list
// is nearly ordered; the stable sort keeps originally-equal records in
// their input order.
func restoreOrder(target *model.Segment) {
	sort.SliceStable(target.Records, func(i, j int) bool {
		return target.Records[i].EffectiveStart() < target.Records[j].EffectiveStart()
	})
}
