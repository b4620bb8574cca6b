// Package model defines core data structures for seisflow.
package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Tick is a fixed-point timestamp: nanoseconds since the Unix epoch.
// All pruning arithmetic happens in ticks so boundary comparisons are exact.
type Tick int64

// TicksPerSecond is the tick resolution.
const TicksPerSecond Tick = 1_000_000_000

// TickFromTime converts a time.Time to ticks.
func TickFromTime(t time.Time) Tick {
	return Tick(t.UnixNano())
}

// Time converts ticks back to a time.Time in UTC.
func (t Tick) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// Seconds returns the tick value as floating-point seconds.
func (t Tick) Seconds() float64 {
	return float64(t) / float64(TicksPerSecond)
}

// String formats the tick as an RFC3339Nano timestamp.
func (t Tick) String() string {
	return t.Time().Format(time.RFC3339Nano)
}

// PeriodForRate returns the sample period in ticks for a nominal rate.
// Returns 0 for non-positive rates (non-timeseries data).
func PeriodForRate(rate float64) Tick {
	if rate <= 0 {
		return 0
	}
	return Tick(math.Round(float64(TicksPerSecond) / rate))
}

// Quality is the publication version / quality code of a record.
// Ranks ascend R < D < Q < M; unknown codes rank below all of them.
type Quality byte

// Rank returns the priority rank of the quality code.
func (q Quality) Rank() int {
	switch q {
	case 'R':
		return 1
	case 'D':
		return 2
	case 'Q':
		return 3
	case 'M':
		return 4
	default:
		return 0
	}
}

func (q Quality) String() string {
	return string(rune(q))
}

// RecordState is the pruning disposition of a record.
type RecordState uint8

const (
	// StateKept means the record survives unmodified.
	StateKept RecordState = iota

	// StateClipped means the record survives but must be repacked to its
	// ClipWindow before output.
	StateClipped

	// StateOmitted means the record is dropped from output entirely.
	StateOmitted
)

func (s RecordState) String() string {
	switch s {
	case StateKept:
		return "kept"
	case StateClipped:
		return "clipped"
	case StateOmitted:
		return "omitted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ClipWindow narrows a record's effective time span without touching its
// bytes until repack. Unset ends mean "no override".
type ClipWindow struct {
	Start    Tick
	End      Tick
	HasStart bool
	HasEnd   bool
}

// Set reports whether either end of the window is set.
func (w ClipWindow) Set() bool {
	return w.HasStart || w.HasEnd
}

// TightenStart raises the window start, never lowering it.
func (w *ClipWindow) TightenStart(t Tick) {
	if !w.HasStart || t > w.Start {
		w.Start = t
		w.HasStart = true
	}
}

// TightenEnd lowers the window end, never raising it.
func (w *ClipWindow) TightenEnd(t Tick) {
	if !w.HasEnd || t < w.End {
		w.End = t
		w.HasEnd = true
	}
}

// RecordRef is one physical on-disk record contributing to a segment.
// The segment owns it until assembly moves it to a per-identity output list.
type RecordRef struct {
	// Identity is the channel key (NET_STA_LOC_CHAN) this record belongs to.
	Identity string

	// FileID indexes the run's input file table.
	FileID int

	// Offset and Length locate the encoded bytes in the source file.
	Offset int64
	Length int32

	// Start and End are the nominal times of the first and last sample.
	// A point record has Start == End.
	Start Tick
	End   Tick

	SampleRate  float64
	SampleCount int
	Encoding    uint8
	Quality     Quality

	State RecordState
	Clip  ClipWindow
}

// Period returns the sample period of the record in ticks.
func (r *RecordRef) Period() Tick {
	return PeriodForRate(r.SampleRate)
}

// EffectiveStart is the clip start when set, else the nominal start.
func (r *RecordRef) EffectiveStart() Tick {
	if r.Clip.HasStart {
		return r.Clip.Start
	}
	return r.Start
}

// EffectiveEnd is the clip end when set, else the nominal end.
func (r *RecordRef) EffectiveEnd() Tick {
	if r.Clip.HasEnd {
		return r.Clip.End
	}
	return r.End
}

// IsPoint reports whether the record is a genuine zero-duration record.
func (r *RecordRef) IsPoint() bool {
	return r.Start == r.End
}

// Segment is a maximal run of same-identity, same-quality, uniform-rate,
// time-adjacent records. Records stay ordered by effective start time.
type Segment struct {
	Identity   string
	Quality    Quality
	SampleRate float64
	Start      Tick
	End        Tick

	// Index is the catalog build order; it is the final deterministic
	// tie-break when two overlapping segments rank equal.
	Index int

	// NonTimeseries marks zero-rate pseudo-segments excluded from pruning.
	NonTimeseries bool

	Records []*RecordRef
}

// Duration returns the nominal time span of the segment.
func (s *Segment) Duration() Tick {
	return s.End - s.Start
}

// Period returns the sample period of the segment in ticks.
func (s *Segment) Period() Tick {
	return PeriodForRate(s.SampleRate)
}

// Catalog is the identity -> segment -> record index for one run.
type Catalog struct {
	Segments   []*Segment
	byIdentity map[string][]*Segment
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byIdentity: make(map[string][]*Segment)}
}

// Add appends a segment, assigning its catalog index.
func (c *Catalog) Add(seg *Segment) {
	seg.Index = len(c.Segments)
	c.Segments = append(c.Segments, seg)
	c.byIdentity[seg.Identity] = append(c.byIdentity[seg.Identity], seg)
}

// Peers returns every segment sharing an identity, in catalog order.
func (c *Catalog) Peers(identity string) []*Segment {
	return c.byIdentity[identity]
}

// Identities returns the identities present, in first-seen order.
func (c *Catalog) Identities() []string {
	seen := make(map[string]bool, len(c.byIdentity))
	var ids []string
	for _, seg := range c.Segments {
		if !seen[seg.Identity] {
			seen[seg.Identity] = true
			ids = append(ids, seg.Identity)
		}
	}
	return ids
}

// RecordCount returns the total number of records in the catalog.
func (c *Catalog) RecordCount() int {
	n := 0
	for _, seg := range c.Segments {
		n += len(seg.Records)
	}
	return n
}

// JoinIdentity builds the canonical identity key from its parts.
func JoinIdentity(network, station, location, channel string) string {
	return strings.Join([]string{network, station, location, channel}, "_")
}

// SplitIdentity breaks an identity key into its four parts.
func SplitIdentity(identity string) (network, station, location, channel string) {
	parts := strings.SplitN(identity, "_", 4)
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2], parts[3]
}
