// Package selection parses selection-list files and folds matching time
// windows into record clip windows before coverage resolution runs.
//
// Each line holds whitespace-separated fields:
//
//	network station location channel [start] [end]
//
// Identity fields accept '*' and '?' wildcards. Times are RFC3339 (or
// RFC3339Nano); '*' or a missing field leaves that bound open. Lines
// starting with '#' are comments.
package selection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/seisflow/seisflow/internal/model"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
)

// Window is one selection entry.
type Window struct {
	Network  string
	Station  string
	Location string
	Channel  string

	Start    model.Tick
	End      model.Tick
	HasStart bool
	HasEnd   bool
}

// Matches reports whether the window's identity pattern matches an identity.
func (w Window) Matches(identity string) bool {
	net, sta, loc, cha := model.SplitIdentity(identity)
	return matchPart(w.Network, net) &&
		matchPart(w.Station, sta) &&
		matchPart(w.Location, loc) &&
		matchPart(w.Channel, cha)
}

func matchPart(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}

// intersects reports whether the window's time range touches [start,end].
func (w Window) intersects(start, end model.Tick) bool {
	if w.HasStart && end < w.Start {
		return false
	}
	if w.HasEnd && start > w.End {
		return false
	}
	return true
}

// List is a parsed selection file.
type List struct {
	Windows []Window
}

// Empty reports whether the list has no windows.
func (l *List) Empty() bool {
	return l == nil || len(l.Windows) == 0
}

// ParseFile reads a selection list from a file.
func ParseFile(filePath string) (*List, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, seiserr.Wrap(err, seiserr.CodeBadSelection, "open selection file").
			WithContext("path", filePath)
	}
	defer f.Close()
	l, err := Parse(f)
	if err != nil {
		return nil, seiserr.Wrap(err, seiserr.CodeBadSelection, "parse selection file").
			WithContext("path", filePath)
	}
	return l, nil
}

// Parse reads a selection list.
func Parse(r io.Reader) (*List, error) {
	list := &List{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("line %d: expected at least 4 fields, got %d", lineNo, len(fields))
		}

		w := Window{
			Network:  fields[0],
			Station:  fields[1],
			Location: fields[2],
			Channel:  fields[3],
		}
		if len(fields) > 4 && fields[4] != "*" {
			t, err := parseTime(fields[4])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad start time %q: %w", lineNo, fields[4], err)
			}
			w.Start = t
			w.HasStart = true
		}
		if len(fields) > 5 && fields[5] != "*" {
			t, err := parseTime(fields[5])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad end time %q: %w", lineNo, fields[5], err)
			}
			w.End = t
			w.HasEnd = true
		}
		if w.HasStart && w.HasEnd && w.Start >= w.End {
			return nil, fmt.Errorf("line %d: start not before end", lineNo)
		}
		list.Windows = append(list.Windows, w)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func parseTime(s string) (model.Tick, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return model.TickFromTime(t), nil
		}
	}
	return 0, fmt.Errorf("unrecognized time format")
}

// Apply intersects every record's nominal span with its matching windows
// and folds the tightest bound into the record's ClipWindow. Records that
// match no window are omitted. A record touched by two disjoint required
// ranges has no single surviving sub-range and is an invariant violation.
// Returns the number of records still selected.
func (l *List) Apply(records []*model.RecordRef) (int, error) {
	if l.Empty() {
		return len(records), nil
	}

	selected := 0
	for _, rec := range records {
		ranges := l.requiredRanges(rec)
		switch len(ranges) {
		case 0:
			rec.State = model.StateOmitted
			continue
		case 1:
			// fold
		default:
			return selected, seiserr.New(seiserr.CodeInvariantViolated,
				"record matches multiple disjoint selection ranges").
				WithContext("identity", rec.Identity).
				WithContext("offset", rec.Offset)
		}

		rng := ranges[0]
		if rng.hasStart && rng.start > rec.Start {
			rec.Clip.TightenStart(rng.start)
			rec.State = model.StateClipped
		}
		if rng.hasEnd && rng.end < rec.End {
			rec.Clip.TightenEnd(rng.end)
			rec.State = model.StateClipped
		}
		selected++
	}
	return selected, nil
}

type timeRange struct {
	start, end       model.Tick
	hasStart, hasEnd bool
}

// requiredRanges merges the windows intersecting rec into disjoint ranges.
func (l *List) requiredRanges(rec *model.RecordRef) []timeRange {
	var ranges []timeRange
	for _, w := range l.Windows {
		if !w.Matches(rec.Identity) || !w.intersects(rec.Start, rec.End) {
			continue
		}
		r := timeRange{start: w.Start, end: w.End, hasStart: w.HasStart, hasEnd: w.HasEnd}
		merged := false
		for i := range ranges {
			if overlaps(ranges[i], r) {
				ranges[i] = union(ranges[i], r)
				merged = true
				break
			}
		}
		if !merged {
			ranges = append(ranges, r)
		}
	}

	// A second pass may still find mergeable pairs after unions grew.
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(ranges) && !changed; i++ {
			for j := i + 1; j < len(ranges); j++ {
				if overlaps(ranges[i], ranges[j]) {
					ranges[i] = union(ranges[i], ranges[j])
					ranges = append(ranges[:j], ranges[j+1:]...)
					changed = true
					break
				}
			}
		}
	}
	return ranges
}

func overlaps(a, b timeRange) bool {
	if a.hasEnd && b.hasStart && a.end < b.start {
		return false
	}
	if b.hasEnd && a.hasStart && b.end < a.start {
		return false
	}
	return true
}

func union(a, b timeRange) timeRange {
	out := timeRange{hasStart: a.hasStart && b.hasStart, hasEnd: a.hasEnd && b.hasEnd}
	if out.hasStart {
		out.start = minTick(a.start, b.start)
	}
	if out.hasEnd {
		out.end = maxTick(a.end, b.end)
	}
	return out
}

func minTick(a, b model.Tick) model.Tick {
	if a < b {
		return a
	}
	return b
}

func maxTick(a, b model.Tick) model.Tick {
	if a > b {
		return a
	}
	return b
}
