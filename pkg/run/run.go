// Package run orchestrates one batch: prefetch, catalog, prune, output.
// Input is fully cataloged before any pruning decision, and pruning is
// fully resolved before any output write.
package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/seisflow/seisflow/internal/model"
	"github.com/seisflow/seisflow/pkg/archive"
	"github.com/seisflow/seisflow/pkg/assemble"
	"github.com/seisflow/seisflow/pkg/codec"
	"github.com/seisflow/seisflow/pkg/config"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
	"github.com/seisflow/seisflow/pkg/export"
	"github.com/seisflow/seisflow/pkg/group"
	"github.com/seisflow/seisflow/pkg/prune"
	"github.com/seisflow/seisflow/pkg/selection"
	s3store "github.com/seisflow/seisflow/pkg/storage/s3"
	"github.com/seisflow/seisflow/pkg/summary"
	"github.com/seisflow/seisflow/pkg/telemetry"
)

// Runner executes one pruning run.
type Runner struct {
	cfg   *config.Config
	codec codec.Codec

	// Stdout carries the parsable summary stream, Stderr the styled
	// report and warnings.
	Stdout io.Writer
	Stderr io.Writer

	// Progress enables the scan progress bar.
	Progress bool
}

// Result reports what one run did. Empty distinguishes a successful run
// that selected or produced nothing from a failure.
type Result struct {
	RunID        string
	RecordsIn    int
	RecordsOut   int64
	Omitted      int
	Clipped      int
	Skipped      int
	BytesWritten int64
	Warnings     int
	Empty        bool
	Tallies      []*summary.Tally
}

// New creates a runner.
func New(cfg *config.Config, c codec.Codec) *Runner {
	return &Runner{
		cfg:    cfg,
		codec:  c,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the batch over the given input files (local paths or
// s3:// URLs).
func (r *Runner) Run(ctx context.Context, inputs []string) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}

	if len(inputs) == 0 {
		res.Empty = true
		return res, nil
	}
	if !r.hasDestination() {
		res.Empty = true
		return res, nil
	}

	exp, shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       r.cfg.Telemetry.Endpoint,
		ServiceName:    "seisflow",
		ServiceVersion: "0.1.0",
		RunID:          res.RunID,
		InsecureTLS:    r.cfg.Telemetry.Insecure,
		ExportTimeout:  30 * time.Second,
		SamplingRatio:  r.cfg.Telemetry.Sampling,
	})
	if err != nil {
		return res, seiserr.Wrap(err, seiserr.CodeConfig, "init telemetry")
	}
	defer shutdown(context.Background())

	inputs, cleanup, err := r.prefetch(ctx, exp, inputs)
	if err != nil {
		return res, err
	}
	defer cleanup()

	gov := archive.NewGovernor(r.cfg.Archive.Budget, r.cfg.Archive.Margin)
	files := assemble.NewFileTable(inputs, gov)
	defer files.CloseAll()

	// Best effort: more headroom avoids forced re-opens, never correctness.
	if err := raiseFileLimit(uint64(len(inputs) + gov.Budget() + 64)); err != nil {
		r.warnf("could not raise open file limit: %v", err)
	}

	records, err := r.catalogScan(ctx, exp, files)
	if err != nil {
		return res, err
	}
	res.RecordsIn = len(records)
	if len(records) == 0 {
		res.Empty = true
		return res, nil
	}

	records, err = r.applySelection(records)
	if err != nil {
		return res, err
	}
	if len(records) == 0 {
		res.Empty = true
		return res, nil
	}

	opts, err := r.pruneOptions()
	if err != nil {
		return res, err
	}

	catalog := group.Build(records, group.Options{
		TimeToleranceSeconds: r.cfg.Tolerances.TimeSeconds,
		RateTolerance:        r.cfg.Tolerances.Rate,
	})

	_, pruneSpan := exp.StartPhase(ctx, "prune",
		attribute.Int("segments", len(catalog.Segments)),
		attribute.Int("records", catalog.RecordCount()))
	mods, err := prune.Prune(catalog, opts)
	pruneSpan.End()
	if err != nil {
		return res, err
	}
	countStates(catalog, res)

	if err := r.output(ctx, exp, catalog, files, gov, mods > 0 || res.Clipped > 0, res); err != nil {
		return res, err
	}
	return res, nil
}

// hasDestination reports whether any output surface is configured.
func (r *Runner) hasDestination() bool {
	o := r.cfg.Output
	return o.Path != "" || r.cfg.Archive.Template != "" || o.Summary || o.Report != ""
}

// prefetch downloads s3:// inputs to a temp dir, leaving local paths as-is.
func (r *Runner) prefetch(ctx context.Context, exp *telemetry.Exporter, inputs []string) ([]string, func(), error) {
	cleanup := func() {}
	anyRemote := false
	for _, in := range inputs {
		if s3store.IsURL(in) {
			anyRemote = true
			break
		}
	}
	if !anyRemote {
		return inputs, cleanup, nil
	}

	_, span := exp.StartPhase(ctx, "prefetch")
	defer span.End()

	client, err := s3store.NewClient(ctx, s3store.Config{
		Region:          r.cfg.S3.Region,
		Endpoint:        r.cfg.S3.Endpoint,
		UsePathStyle:    r.cfg.S3.UsePathStyle,
		DownloadTimeout: 5 * time.Minute,
	})
	if err != nil {
		return nil, cleanup, seiserr.Wrap(err, seiserr.CodeConfig, "create s3 client")
	}

	tmpDir, err := os.MkdirTemp("", "seisflow-prefetch-*")
	if err != nil {
		return nil, cleanup, seiserr.Wrap(err, seiserr.CodeFileRead, "create prefetch dir")
	}
	cleanup = func() { os.RemoveAll(tmpDir) }

	out := make([]string, len(inputs))
	for i, in := range inputs {
		if !s3store.IsURL(in) {
			out[i] = in
			continue
		}
		local, err := client.Fetch(ctx, in, tmpDir)
		if err != nil {
			return nil, cleanup, seiserr.Wrap(err, seiserr.CodeFileRead, "prefetch input").
				WithContext("url", in)
		}
		out[i] = local
	}
	return out, cleanup, nil
}

// catalogScan reads every record header from every input. The scan fans
// out per file (read-only) and merges in input order, so the catalog is
// identical to a sequential scan.
func (r *Runner) catalogScan(ctx context.Context, exp *telemetry.Exporter, files *assemble.FileTable) ([]*model.RecordRef, error) {
	_, span := exp.StartPhase(ctx, "catalog", attribute.Int("files", files.Len()))
	defer span.End()

	var totalBytes int64
	for id := 0; id < files.Len(); id++ {
		size, err := files.Size(id)
		if err != nil {
			return nil, err
		}
		totalBytes += size
	}

	var bar interface{ Add64(int64) error }
	if r.Progress {
		bar = summary.NewScanBar(totalBytes)
	}

	perFile := make([][]*model.RecordRef, files.Len())
	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < files.Len(); id++ {
		fileID := id
		path := files.Path(fileID)
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return seiserr.Wrap(err, seiserr.CodeFileNotFound, "open input").
					WithContext("path", path)
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return seiserr.Wrap(err, seiserr.CodeFileRead, "stat input").
					WithContext("path", path)
			}

			var recs []*model.RecordRef
			err = codec.Scan(r.codec, f, st.Size(), func(h *codec.Header, offset int64, length int32) error {
				if err := ctx.Err(); err != nil {
					return seiserr.ContextCanceled("catalog scan")
				}
				recs = append(recs, &model.RecordRef{
					Identity:    h.Identity(),
					FileID:      fileID,
					Offset:      offset,
					Length:      length,
					Start:       h.Start,
					End:         h.End(),
					SampleRate:  h.SampleRate,
					SampleCount: h.SampleCount,
					Encoding:    uint8(h.Encoding),
					Quality:     h.Quality,
				})
				if bar != nil {
					bar.Add64(int64(length))
				}
				return nil
			})
			if err != nil {
				return err
			}
			perFile[fileID] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []*model.RecordRef
	for _, recs := range perFile {
		records = append(records, recs...)
	}
	return records, nil
}

// applySelection folds selection windows into clip windows and drops
// unselected records before grouping.
func (r *Runner) applySelection(records []*model.RecordRef) ([]*model.RecordRef, error) {
	if r.cfg.Output.Selection == "" {
		return records, nil
	}
	list, err := selection.ParseFile(r.cfg.Output.Selection)
	if err != nil {
		return nil, err
	}
	if _, err := list.Apply(records); err != nil {
		return nil, err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.State != model.StateOmitted {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func (r *Runner) pruneOptions() (prune.Options, error) {
	opts := prune.Options{
		TimeToleranceSeconds: r.cfg.Tolerances.TimeSeconds,
		RateTolerance:        r.cfg.Tolerances.Rate,
	}

	switch r.cfg.Prune.Mode {
	case "record":
		opts.Mode = prune.ModeRecord
	case "sample":
		opts.Mode = prune.ModeSample
	case "edges":
		opts.Mode = prune.ModeEdges
	default:
		return opts, seiserr.New(seiserr.CodeConfig, "invalid prune mode").
			WithContext("mode", r.cfg.Prune.Mode)
	}
	switch r.cfg.Prune.Priority {
	case "best":
		opts.Priority = prune.PriorityBest
	case "equal":
		opts.Priority = prune.PriorityAllEqual
	default:
		return opts, seiserr.New(seiserr.CodeConfig, "invalid priority mode").
			WithContext("priority", r.cfg.Prune.Priority)
	}

	if s := r.cfg.Prune.StartTime; s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return opts, seiserr.Wrap(err, seiserr.CodeConfig, "parse start time")
		}
		opts.SelectStart = model.TickFromTime(t)
		opts.HasSelectStart = true
	}
	if s := r.cfg.Prune.EndTime; s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return opts, seiserr.Wrap(err, seiserr.CodeConfig, "parse end time")
		}
		opts.SelectEnd = model.TickFromTime(t)
		opts.HasSelectEnd = true
	}
	return opts, nil
}

// countStates records the post-prune disposition counts before assembly
// discards the omitted entries.
func countStates(catalog *model.Catalog, res *Result) {
	res.Omitted, res.Clipped = 0, 0
	for _, seg := range catalog.Segments {
		for _, rec := range seg.Records {
			switch rec.State {
			case model.StateOmitted:
				res.Omitted++
			case model.StateClipped:
				res.Clipped++
			}
		}
	}
}

// output streams the surviving records to the configured sinks and emits
// the summary surfaces.
func (r *Runner) output(ctx context.Context, exp *telemetry.Exporter, catalog *model.Catalog,
	files *assemble.FileTable, gov *archive.Governor, pruned bool, res *Result) error {

	_, span := exp.StartPhase(ctx, "output")
	defer span.End()

	var sink io.Writer
	if r.cfg.Output.Path != "" {
		flags := os.O_CREATE | os.O_WRONLY
		if r.cfg.Output.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(r.cfg.Output.Path, flags, 0o644)
		if err != nil {
			return seiserr.Wrap(err, seiserr.CodeWriteFailed, "open output file").
				WithContext("path", r.cfg.Output.Path)
		}
		defer f.Close()
		sink = f
	}

	var arch *archive.Writer
	if r.cfg.Archive.Template != "" {
		tmpl, err := archive.Compile(r.cfg.Archive.Template)
		if err != nil {
			return err
		}
		arch = archive.NewWriter(tmpl, gov, r.cfg.Archive.IdleTimeout)
		defer func() {
			if cerr := arch.CloseAll(); cerr != nil {
				r.warnf("closing archive: %v", cerr)
			}
		}()
	}

	var rewrite model.Quality
	if r.cfg.Output.Quality != "" {
		rewrite = model.Quality(r.cfg.Output.Quality[0])
	}

	asm := assemble.New(
		assemble.Config{RewriteQuality: rewrite},
		r.codec, files, sink, arch,
		func(err error) {
			res.Warnings++
			summary.Warn(r.Stderr, err)
		},
	)

	out, err := asm.Flush(catalog, pruned)
	if err != nil {
		return err
	}

	res.RecordsOut = out.RecordsOut
	res.Skipped = out.Skipped
	res.BytesWritten = out.BytesWritten
	res.Tallies = out.Tallies.Tallies()

	if r.cfg.Output.Summary {
		if err := out.Tallies.WriteLines(r.Stdout); err != nil {
			return seiserr.Wrap(err, seiserr.CodeWriteFailed, "write summary")
		}
	}
	if r.cfg.Output.Report != "" {
		if err := export.WriteParquet(r.cfg.Output.Report, res.RunID, res.Tallies); err != nil {
			return seiserr.Wrap(err, seiserr.CodeWriteFailed, "write report")
		}
	}
	return nil
}

func (r *Runner) warnf(format string, args ...interface{}) {
	fmt.Fprintf(r.Stderr, "warning: "+format+"\n", args...)
}
