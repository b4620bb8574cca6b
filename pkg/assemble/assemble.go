// Package assemble merges pruned segments back into per-identity output
// lists and streams the surviving records to the configured sinks.
package assemble

import (
	"io"
	"sort"

	"github.com/seisflow/seisflow/internal/model"
	"github.com/seisflow/seisflow/internal/pool"
	"github.com/seisflow/seisflow/pkg/archive"
	"github.com/seisflow/seisflow/pkg/codec"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
	"github.com/seisflow/seisflow/pkg/repack"
	"github.com/seisflow/seisflow/pkg/summary"
)

// Config configures the assembler.
type Config struct {
	// RewriteQuality, when non-zero, replaces every output record's quality
	// code (checksum recomputed; sample bytes untouched).
	RewriteQuality model.Quality
}

// Assembler streams surviving records to a single sink and/or the archive.
type Assembler struct {
	cfg     Config
	codec   codec.Codec
	files   *FileTable
	sink    io.Writer       // optional
	arch    *archive.Writer // optional
	warn    func(error)
	buffers *pool.BufferPool
	samples *pool.SamplePool
}

// Result summarizes one assembly pass.
type Result struct {
	RecordsOut   int64
	RecordsIn    int
	Skipped      int
	BytesWritten int64
	Tallies      *summary.Set
}

// New creates an assembler. sink and arch may each be nil; warn receives
// record-local diagnostics and may be nil.
func New(cfg Config, c codec.Codec, files *FileTable, sink io.Writer, arch *archive.Writer, warn func(error)) *Assembler {
	if warn == nil {
		warn = func(error) {}
	}
	return &Assembler{
		cfg:     cfg,
		codec:   c,
		files:   files,
		sink:    sink,
		arch:    arch,
		warn:    warn,
		buffers: pool.NewBufferPool(pool.DefaultBufferSize),
		samples: pool.NewSamplePool(),
	}
}

// Flush relinks every identity's surviving records into one time-ordered
// list and streams them. pruned indicates whether any pruning or selection
// clipping occurred; only then is the stable re-sort needed.
func (a *Assembler) Flush(catalog *model.Catalog, pruned bool) (*Result, error) {
	res := &Result{Tallies: summary.NewSet()}

	for _, identity := range catalog.Identities() {
		records := a.relink(catalog.Peers(identity))
		if pruned {
			sort.SliceStable(records, func(i, j int) bool {
				return records[i].EffectiveStart() < records[j].EffectiveStart()
			})
		}
		for _, rec := range records {
			res.RecordsIn++
			if err := a.stream(rec, res); err != nil {
				if seiserr.IsRecordLocal(err) {
					a.warn(err)
					res.Skipped++
					continue
				}
				return res, err
			}
		}
	}
	return res, nil
}

// relink merges an identity's segment lists into one slice, physically
// discarding omitted entries. Ownership of the records moves to the output
// list here.
func (a *Assembler) relink(segments []*model.Segment) []*model.RecordRef {
	var out []*model.RecordRef
	for _, seg := range segments {
		for _, rec := range seg.Records {
			if rec.State != model.StateOmitted {
				out = append(out, rec)
			}
		}
		seg.Records = nil
	}
	return out
}

// stream reads one record's original bytes, repacks when clipped, and
// delivers the final bytes to the sinks.
func (a *Assembler) stream(rec *model.RecordRef, res *Result) error {
	buf := a.buffers.Get()
	defer a.buffers.Put(buf)
	buf.Grow(int(rec.Length))

	if err := a.files.ReadAt(rec.FileID, buf.Bytes(), rec.Offset); err != nil {
		return err
	}

	pieces := [][]byte{buf.Bytes()}
	if rec.State == model.StateClipped {
		repacked, err := repack.Repack(rec, buf.Bytes(), a.codec, a.samples)
		switch {
		case err == nil:
			pieces = repacked
		case seiserr.IsCode(err, seiserr.CodeUnsupportedEncoding),
			seiserr.IsCode(err, seiserr.CodeDecodeFailed):
			// Emit whole and untrimmed; a small overlap survives.
			a.warn(err)
		default:
			// Bad trim boundary and fully-trimmed skip the record upstream.
			return err
		}
	}

	for _, piece := range pieces {
		if a.cfg.RewriteQuality != 0 {
			if err := a.codec.RewriteQuality(piece, a.cfg.RewriteQuality); err != nil {
				return err
			}
		}
		if err := a.deliver(rec, piece, res); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) deliver(rec *model.RecordRef, piece []byte, res *Result) error {
	if a.sink != nil {
		if _, err := a.sink.Write(piece); err != nil {
			return seiserr.Wrap(err, seiserr.CodeWriteFailed, "write output record").
				WithContext("identity", rec.Identity)
		}
	}
	if a.arch != nil {
		if err := a.arch.Write(rec, piece); err != nil {
			return err
		}
	}

	res.RecordsOut++
	res.BytesWritten += int64(len(piece))

	// The piece header carries the post-trim span and count for the tally.
	h, err := a.codec.DecodeHeader(piece)
	if err != nil {
		return seiserr.Wrap(err, seiserr.CodeInvariantViolated, "reparse output record header")
	}
	quality := h.Quality
	res.Tallies.Add(rec.Identity, quality, h.Start, h.End(), int64(len(piece)), int64(h.SampleCount))
	return nil
}
