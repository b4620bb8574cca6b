// Package export writes the machine-readable run report.
package export

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/seisflow/seisflow/pkg/summary"
)

// reportSchema returns the Arrow schema for the per-identity tally report.
// Timestamps are int64 nanoseconds since the Unix epoch.
func reportSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "run_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "identity", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "quality", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "start", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "end", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "bytes", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "records", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "samples", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	}, nil)
}

// WriteParquet writes the tally report as a Parquet file.
func WriteParquet(path, runID string, tallies []*summary.Tally) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %q: %w", path, err)
	}
	defer f.Close()

	allocator := memory.NewGoAllocator()
	schema := reportSchema()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}

	runIDB := array.NewStringBuilder(allocator)
	identityB := array.NewStringBuilder(allocator)
	qualityB := array.NewStringBuilder(allocator)
	startB := array.NewInt64Builder(allocator)
	endB := array.NewInt64Builder(allocator)
	bytesB := array.NewInt64Builder(allocator)
	recordsB := array.NewInt64Builder(allocator)
	samplesB := array.NewInt64Builder(allocator)

	for _, t := range tallies {
		runIDB.Append(runID)
		identityB.Append(t.Identity)
		qualityB.Append(t.Quality.String())
		startB.Append(int64(t.Start))
		endB.Append(int64(t.End))
		bytesB.Append(t.Bytes)
		recordsB.Append(t.Records)
		samplesB.Append(t.Samples)
	}

	cols := []arrow.Array{
		runIDB.NewArray(), identityB.NewArray(), qualityB.NewArray(),
		startB.NewArray(), endB.NewArray(), bytesB.NewArray(),
		recordsB.NewArray(), samplesB.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	record := array.NewRecord(schema, cols, int64(len(tallies)))
	defer record.Release()

	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("write report rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
