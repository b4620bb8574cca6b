package prune

import (
	"testing"

	"github.com/seisflow/seisflow/internal/model"
)

const sec = model.TicksPerSecond

func tick(s float64) model.Tick {
	return model.Tick(s * float64(sec))
}

// addSeg appends a segment of contiguous records to the catalog: nrecs
// records of perRec samples each at the given rate, starting at startSec.
func addSeg(c *model.Catalog, id string, q model.Quality, rate float64, startSec float64, nrecs, perRec int) *model.Segment {
	period := model.PeriodForRate(rate)
	recDur := model.Tick(perRec) * period

	seg := &model.Segment{Identity: id, Quality: q, SampleRate: rate}
	for i := 0; i < nrecs; i++ {
		start := tick(startSec) + model.Tick(i)*recDur
		end := start
		if perRec > 1 {
			end = start + model.Tick(perRec-1)*period
		}
		seg.Records = append(seg.Records, &model.RecordRef{
			Identity:    id,
			Quality:     q,
			SampleRate:  rate,
			SampleCount: perRec,
			Start:       start,
			End:         end,
		})
	}
	seg.Start = seg.Records[0].Start
	seg.End = seg.Records[nrecs-1].End
	c.Add(seg)
	return seg
}

func TestResolveCoverageMergesPeerRecords(t *testing.T) {
	c := model.NewCatalog()
	target := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 4, 10, 10)

	cov := ResolveCoverage(target, c.Peers(target.Identity), DefaultOptions())
	if len(cov) != 1 {
		t.Fatalf("got %d intervals, want 1", len(cov))
	}
	if cov[0].Start != tick(4) || cov[0].End != tick(13.9) {
		t.Errorf("interval = [%v, %v], want [4s, 13.9s]", cov[0].Start, cov[0].End)
	}
	if cov[0].Quality != 'Q' {
		t.Errorf("quality = %s, want Q", cov[0].Quality)
	}
}

func TestResolveCoverageSplitsOnPeerGap(t *testing.T) {
	c := model.NewCatalog()
	target := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 20, 10)

	// Two disjoint higher-quality blocks.
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 2, 2, 10)
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 10, 2, 10)

	cov := ResolveCoverage(target, c.Peers(target.Identity), DefaultOptions())
	if len(cov) != 2 {
		t.Fatalf("got %d intervals, want 2", len(cov))
	}
	if cov[0].Start != tick(2) || cov[1].Start != tick(10) {
		t.Errorf("intervals = %+v", cov)
	}
}

func TestResolveCoverageIgnoresLowerPriority(t *testing.T) {
	c := model.NewCatalog()
	target := addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 0, 10, 10)
	addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 4, 10, 10) // lower quality, longer is irrelevant

	cov := ResolveCoverage(target, c.Peers(target.Identity), DefaultOptions())
	if len(cov) != 0 {
		t.Errorf("lower-quality peer should not shadow, got %+v", cov)
	}
}

func TestResolveCoverageIgnoresRateMismatch(t *testing.T) {
	c := model.NewCatalog()
	target := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 20, 0, 10, 20)

	cov := ResolveCoverage(target, c.Peers(target.Identity), DefaultOptions())
	if len(cov) != 0 {
		t.Errorf("rate-mismatched peer should not shadow, got %+v", cov)
	}
}

func TestResolveCoverageIgnoresNonTimeseries(t *testing.T) {
	c := model.NewCatalog()
	target := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)
	pseudo := &model.Segment{
		Identity:      "IU_ANMO_00_BHZ",
		Quality:       'M',
		Start:         tick(0),
		End:           tick(100),
		NonTimeseries: true,
	}
	c.Add(pseudo)

	cov := ResolveCoverage(target, c.Peers(target.Identity), DefaultOptions())
	if len(cov) != 0 {
		t.Errorf("pseudo-segment should not shadow, got %+v", cov)
	}
}

func TestResolveCoverageNormalizesOverlappingPeers(t *testing.T) {
	c := model.NewCatalog()
	target := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 30, 10)

	// Two higher-quality segments whose spans overlap each other.
	addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 2, 10, 10)
	addSeg(c, "IU_ANMO_00_BHZ", 'M', 10, 8, 10, 10)

	cov := ResolveCoverage(target, c.Peers(target.Identity), DefaultOptions())
	if len(cov) != 1 {
		t.Fatalf("got %d intervals, want 1 merged", len(cov))
	}
	if cov[0].Start != tick(2) || cov[0].End != tick(17.9) {
		t.Errorf("merged interval = [%v, %v]", cov[0].Start, cov[0].End)
	}
}

func TestOutranksTotalOrder(t *testing.T) {
	base := func() (*model.Segment, *model.Segment) {
		a := &model.Segment{Quality: 'D', Start: tick(0), End: tick(10), Index: 0}
		b := &model.Segment{Quality: 'D', Start: tick(0), End: tick(10), Index: 1}
		return a, b
	}

	// Quality decides first in best mode.
	a, b := base()
	b.Quality = 'Q'
	if !outranks(b, a, PriorityBest) || outranks(a, b, PriorityBest) {
		t.Error("Q should outrank D in best mode")
	}

	// All-equal mode ignores quality; equal spans fall through to index.
	if outranks(b, a, PriorityAllEqual) {
		t.Error("equal spans: higher index should not outrank in all-equal mode")
	}
	if !outranks(a, b, PriorityAllEqual) {
		t.Error("equal spans: lower index should outrank in all-equal mode")
	}

	// Duration beats quality tie.
	a, b = base()
	b.End = tick(20)
	if !outranks(b, a, PriorityBest) {
		t.Error("longer segment should outrank")
	}

	// Earlier start beats duration tie.
	a, b = base()
	a.Start, a.End = tick(5), tick(15)
	if !outranks(b, a, PriorityBest) {
		t.Error("earlier start should outrank on duration tie")
	}

	// The order is asymmetric for every distinct pair.
	a, b = base()
	if outranks(a, b, PriorityBest) && outranks(b, a, PriorityBest) {
		t.Error("outranks must never hold both ways")
	}
}

func TestCoverageSkipsOmittedPeerRecords(t *testing.T) {
	c := model.NewCatalog()
	target := addSeg(c, "IU_ANMO_00_BHZ", 'D', 10, 0, 10, 10)
	peer := addSeg(c, "IU_ANMO_00_BHZ", 'Q', 10, 0, 3, 10)
	peer.Records[1].State = model.StateOmitted

	cov := ResolveCoverage(target, c.Peers(target.Identity), DefaultOptions())
	if len(cov) != 2 {
		t.Fatalf("got %d intervals, want 2 (hole where the omitted record was)", len(cov))
	}
}
