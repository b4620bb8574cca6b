package repack

import (
	"testing"

	"github.com/seisflow/seisflow/internal/model"
	"github.com/seisflow/seisflow/internal/pool"
	"github.com/seisflow/seisflow/pkg/codec"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
)

const sec = model.TicksPerSecond

func tick(s float64) model.Tick {
	return model.Tick(s * float64(sec))
}

// encodeRecord builds one real SF1 record of count int32 samples valued
// 0..count-1, 10 sps, starting at startSec. Returns the bytes and the
// matching RecordRef.
func encodeRecord(t *testing.T, startSec float64, count int) ([]byte, *model.RecordRef) {
	t.Helper()
	c := codec.NewSF1()
	hdr := &codec.Header{
		Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ",
		Quality:      'D',
		Encoding:     codec.EncodingInt32,
		RecordLength: codec.HeaderSize + 4*count,
		Start:        tick(startSec),
		SampleRate:   10,
		SampleCount:  count,
	}
	buf := &pool.SampleBuffer{}
	for i := 0; i < count; i++ {
		buf.Ints = append(buf.Ints, int32(i))
	}
	recs, err := c.Encode(hdr, buf)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("fixture spilled into %d records", len(recs))
	}

	ref := &model.RecordRef{
		Identity:    hdr.Identity(),
		Quality:     'D',
		SampleRate:  10,
		SampleCount: count,
		Encoding:    uint8(codec.EncodingInt32),
		Start:       hdr.Start,
		End:         hdr.End(),
		Length:      int32(len(recs[0])),
	}
	return recs[0], ref
}

func decodeOut(t *testing.T, pieces [][]byte) (*codec.Header, []int32) {
	t.Helper()
	c := codec.NewSF1()
	var first *codec.Header
	var samples []int32
	for _, p := range pieces {
		buf := &pool.SampleBuffer{}
		h, err := c.DecodeSamples(p, buf)
		if err != nil {
			t.Fatalf("decode output: %v", err)
		}
		if first == nil {
			first = h
		}
		samples = append(samples, buf.Ints...)
	}
	return first, samples
}

func TestRepackDropsLeadingSamples(t *testing.T) {
	// Record [0, 0.9], samples 0..9. Clip start 0.3 keeps samples 3..9.
	raw, ref := encodeRecord(t, 0, 10)
	ref.Clip.TightenStart(tick(0.3))
	ref.State = model.StateClipped

	pieces, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool())
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	h, samples := decodeOut(t, pieces)
	if h.Start != tick(0.3) {
		t.Errorf("start = %v, want 0.3s", h.Start)
	}
	if len(samples) != 7 || samples[0] != 3 || samples[6] != 9 {
		t.Errorf("samples = %v, want 3..9", samples)
	}
}

func TestRepackDropsTrailingSamples(t *testing.T) {
	// Clip end 0.5 keeps samples 0..5.
	raw, ref := encodeRecord(t, 0, 10)
	ref.Clip.TightenEnd(tick(0.5))
	ref.State = model.StateClipped

	pieces, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool())
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	h, samples := decodeOut(t, pieces)
	if h.Start != tick(0) {
		t.Errorf("start = %v, want 0", h.Start)
	}
	if len(samples) != 6 || samples[5] != 5 {
		t.Errorf("samples = %v, want 0..5", samples)
	}
}

func TestRepackBothEnds(t *testing.T) {
	raw, ref := encodeRecord(t, 0, 10)
	ref.Clip.TightenStart(tick(0.2))
	ref.Clip.TightenEnd(tick(0.7))
	ref.State = model.StateClipped

	pieces, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool())
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	h, samples := decodeOut(t, pieces)
	if h.Start != tick(0.2) {
		t.Errorf("start = %v, want 0.2s", h.Start)
	}
	if len(samples) != 6 || samples[0] != 2 || samples[5] != 7 {
		t.Errorf("samples = %v, want 2..7", samples)
	}

	// The re-encoded record carries a valid checksum.
	if err := codec.NewSF1().VerifyChecksum(pieces[0]); err != nil {
		t.Errorf("output checksum: %v", err)
	}
}

func TestRepackClipBetweenSamples(t *testing.T) {
	// A clip start between sample times drops everything strictly before it.
	raw, ref := encodeRecord(t, 0, 10)
	ref.Clip.TightenStart(tick(0.25))
	ref.State = model.StateClipped

	pieces, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool())
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	h, samples := decodeOut(t, pieces)
	if samples[0] != 3 {
		t.Errorf("first sample = %d, want 3 (first at or after 0.25s)", samples[0])
	}
	if h.Start != tick(0.3) {
		t.Errorf("start = %v, want 0.3s", h.Start)
	}
}

func TestRepackUnsupportedEncoding(t *testing.T) {
	raw, ref := encodeRecord(t, 0, 10)
	ref.Encoding = uint8(codec.EncodingSteim2)
	ref.Clip.TightenEnd(tick(0.5))

	_, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool())
	if !seiserr.IsCode(err, seiserr.CodeUnsupportedEncoding) {
		t.Errorf("got %v, want unsupported encoding", err)
	}
}

func TestRepackFullyTrimmed(t *testing.T) {
	// A sliver between sample times: valid window, zero surviving samples.
	raw, ref := encodeRecord(t, 0, 10)
	ref.Clip.TightenStart(tick(0.85))
	ref.Clip.TightenEnd(tick(0.86))

	_, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool())
	if !seiserr.IsCode(err, seiserr.CodeFullyTrimmed) {
		t.Errorf("got %v, want fully trimmed", err)
	}
}

func TestRepackBadBoundary(t *testing.T) {
	raw, ref := encodeRecord(t, 0, 10)

	// Inverted window.
	ref.Clip = model.ClipWindow{Start: tick(0.6), End: tick(0.4), HasStart: true, HasEnd: true}
	if _, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool()); !seiserr.IsCode(err, seiserr.CodeBadTrimBoundary) {
		t.Errorf("inverted window: got %v", err)
	}

	// Start before the nominal span.
	ref.Clip = model.ClipWindow{Start: tick(-1), HasStart: true}
	if _, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool()); !seiserr.IsCode(err, seiserr.CodeBadTrimBoundary) {
		t.Errorf("early start: got %v", err)
	}

	// End past the nominal span.
	ref.Clip = model.ClipWindow{End: tick(5), HasEnd: true}
	if _, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool()); !seiserr.IsCode(err, seiserr.CodeBadTrimBoundary) {
		t.Errorf("late end: got %v", err)
	}
}

func TestRepackWithoutClipIsInvariantViolation(t *testing.T) {
	raw, ref := encodeRecord(t, 0, 10)
	_, err := Repack(ref, raw, codec.NewSF1(), pool.NewSamplePool())
	if !seiserr.IsCode(err, seiserr.CodeInvariantViolated) {
		t.Errorf("got %v, want invariant violation", err)
	}
}

func TestRepackSmallRecordLength(t *testing.T) {
	// Tiny record length: the trimmed output still fits, but the path
	// through Encode that can spill is exercised end to end.
	c := codec.NewSF1()
	hdr := &codec.Header{
		Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ",
		Quality:      'D',
		Encoding:     codec.EncodingInt32,
		RecordLength: codec.HeaderSize + 4*3,
		Start:        tick(0),
		SampleRate:   10,
		SampleCount:  3,
	}
	buf := &pool.SampleBuffer{Ints: []int32{0, 1, 2}}
	recs, err := c.Encode(hdr, buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	ref := &model.RecordRef{
		Identity: hdr.Identity(), Quality: 'D', SampleRate: 10,
		SampleCount: 3, Encoding: uint8(codec.EncodingInt32),
		Start: hdr.Start, End: hdr.End(),
	}
	ref.Clip.TightenStart(tick(0.1))

	pieces, err := Repack(ref, recs[0], c, pool.NewSamplePool())
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	_, samples := decodeOut(t, pieces)
	if len(samples) != 2 || samples[0] != 1 || samples[1] != 2 {
		t.Errorf("samples = %v, want 1 2", samples)
	}
}
