package prune

import (
	"testing"

	"github.com/seisflow/seisflow/internal/model"
)

func countStates(seg *model.Segment) (kept, clipped, omitted int) {
	for _, rec := range seg.Records {
		switch rec.State {
		case model.StateKept:
			kept++
		case model.StateClipped:
			clipped++
		case model.StateOmitted:
			omitted++
		}
	}
	return
}

// Overlapping D and Q data: every D record fully inside the Q span is
// omitted; the straddling record is clipped to a sample boundary before
// the Q start; Q itself is untouched.
func TestPruneSampleModeOverlap(t *testing.T) {
	c := model.NewCatalog()
	lower := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)  // [0, 9.9]
	upper := addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 3.55, 10, 10) // [3.55, 13.45]

	if _, err := Prune(c, DefaultOptions()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	kept, clipped, omitted := countStates(upper)
	if kept != 10 || clipped != 0 || omitted != 0 {
		t.Errorf("upper segment touched: kept=%d clipped=%d omitted=%d", kept, clipped, omitted)
	}

	kept, clipped, omitted = countStates(lower)
	if kept != 3 || clipped != 1 || omitted != 6 {
		t.Fatalf("lower segment: kept=%d clipped=%d omitted=%d, want 3/1/6", kept, clipped, omitted)
	}

	// The record spanning [3, 3.9] straddles the coverage start 3.55 and is
	// clipped to end at 3.5: one period back from the boundary, plus the
	// half-period tolerance.
	var straddler *model.RecordRef
	for _, rec := range lower.Records {
		if rec.State == model.StateClipped {
			straddler = rec
		}
	}
	if straddler.Start != tick(3) {
		t.Fatalf("clipped the wrong record: start %v", straddler.Start)
	}
	if !straddler.Clip.HasEnd || straddler.Clip.End != tick(3.5) {
		t.Errorf("clip end = %v (set=%v), want 3.5s", straddler.Clip.End, straddler.Clip.HasEnd)
	}
	if straddler.Clip.HasStart {
		t.Error("clip start should not be set")
	}
}

// Record mode omits fully-covered records but never clips partial overlap.
func TestPruneRecordMode(t *testing.T) {
	c := model.NewCatalog()
	lower := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 3.55, 10, 10)

	opts := DefaultOptions()
	opts.Mode = ModeRecord
	if _, err := Prune(c, opts); err != nil {
		t.Fatalf("prune: %v", err)
	}

	kept, clipped, omitted := countStates(lower)
	if clipped != 0 {
		t.Errorf("record mode must not clip, got %d clipped", clipped)
	}
	if kept != 4 || omitted != 6 {
		t.Errorf("kept=%d omitted=%d, want 4/6", kept, omitted)
	}
}

// All-equal priority ignores quality: the longer D segment shadows the
// shorter Q one.
func TestPruneAllEqualPriority(t *testing.T) {
	c := model.NewCatalog()
	long := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10) // [0, 9.9]
	short := addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 4, 5, 10) // [4, 8.9]

	opts := DefaultOptions()
	opts.Priority = PriorityAllEqual
	if _, err := Prune(c, opts); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, _, omitted := countStates(long); omitted != 0 {
		t.Errorf("long segment lost %d records", omitted)
	}
	if _, _, omitted := countStates(short); omitted != 5 {
		t.Errorf("short segment omitted = %d, want all 5", omitted)
	}
}

// A genuine point record sitting exactly on a coverage boundary survives;
// one strictly inside the coverage is omitted.
func TestPrunePointRecords(t *testing.T) {
	c := model.NewCatalog()

	onBoundary := &model.RecordRef{
		Identity: "IU_ANMO_00_BHZ", Quality: 'D', SampleRate: 10,
		SampleCount: 1, Start: tick(4), End: tick(4),
	}
	inside := &model.RecordRef{
		Identity: "IU_ANMO_00_BHZ", Quality: 'D', SampleRate: 10,
		SampleCount: 1, Start: tick(6.5), End: tick(6.5),
	}
	points := &model.Segment{
		Identity: "IU_ANMO_00_BHZ", Quality: 'D', SampleRate: 10,
		Start: tick(4), End: tick(6.5),
		Records: []*model.RecordRef{onBoundary, inside},
	}
	c.Add(points)
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 4, 10, 10) // coverage [4, 13.9]

	if _, err := Prune(c, DefaultOptions()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if onBoundary.State != model.StateKept {
		t.Errorf("boundary point state = %v, want kept", onBoundary.State)
	}
	if inside.State != model.StateOmitted {
		t.Errorf("interior point state = %v, want omitted", inside.State)
	}
}

// Coverage strictly inside a record clips it from both ends; the window
// collapses, so the record is omitted rather than emitted inverted.
func TestTrimInteriorCoverageCollapses(t *testing.T) {
	rec := &model.RecordRef{
		Identity: "IU_ANMO_00_BHZ", Quality: 'D', SampleRate: 10,
		SampleCount: 10, Start: tick(3.8), End: tick(4.7),
	}
	seg := &model.Segment{
		Identity: "IU_ANMO_00_BHZ", Quality: 'D', SampleRate: 10,
		Start: tick(3.8), End: tick(4.7),
		Records: []*model.RecordRef{rec},
	}

	cov := []Interval{{Start: tick(4), End: tick(4.5), Quality: 'Q', SampleRate: 10}}
	if _, err := TrimSegment(seg, cov, DefaultOptions()); err != nil {
		t.Fatalf("trim: %v", err)
	}
	if rec.State != model.StateOmitted {
		t.Errorf("state = %v, want omitted (collapsed window)", rec.State)
	}
}

// Clip windows only tighten: a second, looser interval never widens a
// window set by an earlier one.
func TestTrimNeverWidens(t *testing.T) {
	rec := &model.RecordRef{
		Identity: "IU_ANMO_00_BHZ", Quality: 'D', SampleRate: 10,
		SampleCount: 100, Start: tick(0), End: tick(9.9),
	}
	rec.Clip.TightenEnd(tick(5))
	rec.State = model.StateClipped

	seg := &model.Segment{
		Identity: "IU_ANMO_00_BHZ", Quality: 'D', SampleRate: 10,
		Start: tick(0), End: tick(9.9),
		Records: []*model.RecordRef{rec},
	}

	// Coverage starting at 8s would, alone, clip the end to 7.95s. The
	// existing 5s clip is tighter and must stand.
	cov := []Interval{{Start: tick(8), End: tick(20), Quality: 'Q', SampleRate: 10}}
	if _, err := TrimSegment(seg, cov, DefaultOptions()); err != nil {
		t.Fatalf("trim: %v", err)
	}
	if rec.Clip.End != tick(5) {
		t.Errorf("clip end = %v, want 5s (never widened)", rec.Clip.End)
	}
}

func TestPruneEdgesMode(t *testing.T) {
	c := model.NewCatalog()
	seg := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)
	// A higher-quality overlap that edges mode must ignore.
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 0, 10, 10)

	opts := DefaultOptions()
	opts.Mode = ModeEdges
	opts.SelectStart, opts.HasSelectStart = tick(2.5), true
	opts.SelectEnd, opts.HasSelectEnd = tick(7.5), true

	if _, err := Prune(c, opts); err != nil {
		t.Fatalf("prune: %v", err)
	}

	kept, clipped, omitted := countStates(seg)
	if omitted != 4 {
		t.Errorf("omitted = %d, want 4 (records fully outside [2.5, 7.5])", omitted)
	}
	if clipped != 2 {
		t.Errorf("clipped = %d, want 2 (the straddling records)", clipped)
	}
	if kept != 4 {
		t.Errorf("kept = %d, want 4", kept)
	}

	for _, rec := range seg.Records {
		if rec.State == model.StateOmitted {
			continue
		}
		if rec.EffectiveStart() < tick(2.5) || rec.EffectiveEnd() > tick(7.5) {
			t.Errorf("record [%v, %v] escapes the window", rec.EffectiveStart(), rec.EffectiveEnd())
		}
	}
}

// After trimming, surviving records still ascend by effective start.
func TestTrimPreservesRecordOrder(t *testing.T) {
	c := model.NewCatalog()
	seg := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 20, 10)
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 4.55, 5, 10)

	if _, err := Prune(c, DefaultOptions()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	var prev model.Tick = -1 << 62
	for _, rec := range seg.Records {
		if rec.State == model.StateOmitted {
			continue
		}
		if rec.EffectiveStart() < prev {
			t.Fatalf("order violated at %v", rec.EffectiveStart())
		}
		prev = rec.EffectiveStart()
	}
}

// Two byte-identical copies of the same data: exactly one full copy
// survives, chosen deterministically by catalog order.
func TestPruneDuplicateIdempotence(t *testing.T) {
	c := model.NewCatalog()
	first := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)
	second := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)

	if _, err := Prune(c, DefaultOptions()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	kept, clipped, omitted := countStates(first)
	if kept != 10 || clipped != 0 || omitted != 0 {
		t.Errorf("first copy: kept=%d clipped=%d omitted=%d, want all kept", kept, clipped, omitted)
	}
	kept, clipped, omitted = countStates(second)
	if omitted != 10 || kept != 0 || clipped != 0 {
		t.Errorf("second copy: kept=%d clipped=%d omitted=%d, want all omitted", kept, clipped, omitted)
	}
}

func TestPruneSkipsNonTimeseries(t *testing.T) {
	c := model.NewCatalog()
	pseudo := &model.Segment{
		Identity: "IU_ANMO_00_LOG", Quality: 'D',
		Start: tick(0), End: tick(100), NonTimeseries: true,
		Records: []*model.RecordRef{{Identity: "IU_ANMO_00_LOG", Start: tick(0), End: tick(0)}},
	}
	c.Add(pseudo)

	mods, err := Prune(c, DefaultOptions())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if mods != 0 {
		t.Errorf("mods = %d, want 0", mods)
	}
	if pseudo.Records[0].State != model.StateKept {
		t.Error("pseudo-segment record should be untouched")
	}
}
