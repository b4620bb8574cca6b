// Package repack performs the sample-level trim of one record: decode the
// payload, drop the samples outside the clip window, and re-encode.
// Decode and encode are delegated to the codec collaborator.
package repack

import (
	"github.com/seisflow/seisflow/internal/model"
	"github.com/seisflow/seisflow/internal/pool"
	"github.com/seisflow/seisflow/pkg/codec"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
)

// Repack trims raw to rec's ClipWindow and returns the re-encoded record
// bytes. Repacking can legitimately expand one logical record into several
// physical ones; all are returned in time order.
//
// Record-local failures:
//   - CodeBadTrimBoundary: the clip window is insane relative to the
//     nominal bounds; the caller skips the record with a diagnostic.
//   - CodeUnsupportedEncoding: the encoding cannot be re-encoded; the
//     caller emits the record untrimmed.
//   - CodeFullyTrimmed: the clip would drop every sample; the caller skips
//     the record.
func Repack(rec *model.RecordRef, raw []byte, c codec.Codec, samples *pool.SamplePool) ([][]byte, error) {
	if !rec.Clip.Set() {
		return nil, seiserr.New(seiserr.CodeInvariantViolated, "repack called without clip window").
			WithContext("identity", rec.Identity)
	}
	if err := validateWindow(rec); err != nil {
		return nil, err
	}
	if !c.SupportsRepack(codec.Encoding(rec.Encoding)) {
		return nil, seiserr.UnsupportedEncoding(rec.Encoding)
	}

	buf := samples.Get()
	defer samples.Put(buf)

	hdr, err := c.DecodeSamples(raw, buf)
	if err != nil {
		return nil, seiserr.Wrap(err, seiserr.CodeDecodeFailed, "decode for trim").
			WithContext("identity", rec.Identity).
			WithContext("offset", rec.Offset)
	}

	period := model.PeriodForRate(hdr.SampleRate)
	n := hdr.SampleCount

	// Count leading samples to drop by stepping forward in sample periods
	// from the nominal start until reaching the new start. Stepping, not
	// division, stays robust against rate rounding.
	drop := 0
	if rec.Clip.HasStart {
		for t := hdr.Start; t < rec.Clip.Start && drop < n; t += period {
			drop++
		}
	}

	// Likewise backward from the end for trailing samples.
	trail := 0
	if rec.Clip.HasEnd {
		for t := hdr.End(); t > rec.Clip.End && trail < n-drop; t -= period {
			trail++
		}
	}

	if drop+trail >= n {
		return nil, seiserr.FullyTrimmed(rec.Identity, rec.Offset)
	}

	keep := n - drop - trail
	if hdr.Encoding.IsFloat() {
		copy(buf.Floats, buf.Floats[drop:drop+keep])
		buf.Floats = buf.Floats[:keep]
	} else {
		copy(buf.Ints, buf.Ints[drop:drop+keep])
		buf.Ints = buf.Ints[:keep]
	}

	hdr.Start += model.Tick(drop) * period
	hdr.SampleCount = keep

	out, err := c.Encode(hdr, buf)
	if err != nil {
		return nil, seiserr.Wrap(err, seiserr.CodeDecodeFailed, "re-encode trimmed record").
			WithContext("identity", rec.Identity)
	}
	return out, nil
}

// validateWindow enforces the ClipWindow invariant: start < end when both
// set, and both ends inside the record's nominal span.
func validateWindow(rec *model.RecordRef) error {
	w := rec.Clip
	if w.HasStart && w.HasEnd && w.Start >= w.End {
		return seiserr.BadTrimBoundary(rec.Identity, rec.Offset).
			WithContext("reason", "start not before end")
	}
	if w.HasStart && (w.Start < rec.Start || w.Start > rec.End) {
		return seiserr.BadTrimBoundary(rec.Identity, rec.Offset).
			WithContext("reason", "start outside nominal span")
	}
	if w.HasEnd && (w.End < rec.Start || w.End > rec.End) {
		return seiserr.BadTrimBoundary(rec.Identity, rec.Offset).
			WithContext("reason", "end outside nominal span")
	}
	return nil
}
