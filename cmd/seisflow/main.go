// Seisflow reconciles overlapping, out-of-order waveform records into a
// deduplicated, time-ordered output stream, with optional sample-exact
// trimming and keyed archive fan-out.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seisflow/seisflow/pkg/codec"
	"github.com/seisflow/seisflow/pkg/config"
	"github.com/seisflow/seisflow/pkg/run"
	"github.com/seisflow/seisflow/pkg/summary"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configFile string

	outputFile   string
	appendOutput bool
	archiveTmpl  string

	pruneMode     string
	priorityMode  string
	timeTolerance float64
	rateTolerance float64
	startTime     string
	endTime       string

	selectionFile  string
	rewriteQuality string

	printSummary bool
	reportFile   string

	archiveBudget int
	idleTimeout   time.Duration

	otlpEndpoint string
	noProgress   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "seisflow [files...]",
	Short: "Seisflow - prune overlapping waveform records",
	Long: `Seisflow reads fixed-format waveform records from one or more files,
resolves overlap between segments by quality and duration, optionally trims
records to exact sample boundaries, and writes the surviving records in time
order to a single file and/or a templated archive tree.

Inputs may be local paths or s3:// URLs (prefetched before the run).`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
	Args:    cobra.ArbitraryArgs,
	RunE:    runBatch,
}

func init() {
	f := rootCmd.Flags()

	f.StringVar(&configFile, "config", "", "explicit config file")

	f.StringVarP(&outputFile, "output", "o", "", "single output file")
	f.BoolVar(&appendOutput, "append", false, "append to the output file instead of truncating")
	f.StringVarP(&archiveTmpl, "archive", "a", "", "archive path template (%/# codes)")

	f.StringVar(&pruneMode, "prune", "", "pruning mode: record, sample, or edges")
	f.StringVar(&priorityMode, "priority", "", "priority mode: best or equal")
	f.Float64Var(&timeTolerance, "time-tolerance", -1, "boundary tolerance in seconds (negative = half sample period)")
	f.Float64Var(&rateTolerance, "rate-tolerance", 1e-4, "relative sample rate tolerance")
	f.StringVar(&startTime, "start", "", "global start time (RFC3339)")
	f.StringVar(&endTime, "end", "", "global end time (RFC3339)")

	f.StringVarP(&selectionFile, "selection", "s", "", "selection list file")
	f.StringVarP(&rewriteQuality, "quality", "q", "", "rewrite output quality code (R, D, Q, or M)")

	f.BoolVar(&printSummary, "summary", false, "print one parsable summary line per output identity")
	f.StringVar(&reportFile, "report", "", "write the tally report as Parquet")

	f.IntVar(&archiveBudget, "budget", 0, "open archive handle budget (0 = default)")
	f.DurationVar(&idleTimeout, "idle-timeout", 0, "archive idle eviction threshold (0 = default)")

	f.StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for tracing")
	f.BoolVar(&noProgress, "no-progress", false, "disable the scan progress bar")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	runner := run.New(cfg, codec.NewSF1())
	runner.Progress = !noProgress

	res, err := runner.Run(cmd.Context(), args)
	if err != nil {
		return err
	}

	if res.Empty {
		fmt.Fprintln(os.Stderr, "nothing to do: no input records selected or no output configured")
		return nil
	}

	summary.Render(os.Stderr, summary.RunStats{
		RunID:        res.RunID,
		RecordsIn:    res.RecordsIn,
		RecordsOut:   res.RecordsOut,
		Omitted:      res.Omitted,
		Clipped:      res.Clipped,
		BytesWritten: res.BytesWritten,
		Warnings:     res.Warnings,
	}, res.Tallies)
	return nil
}

// applyFlags folds changed flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	if f.Changed("output") {
		cfg.Output.Path = outputFile
	}
	if f.Changed("append") {
		cfg.Output.Append = appendOutput
	}
	if f.Changed("archive") {
		cfg.Archive.Template = archiveTmpl
	}
	if f.Changed("prune") {
		cfg.Prune.Mode = pruneMode
	}
	if f.Changed("priority") {
		cfg.Prune.Priority = priorityMode
	}
	if f.Changed("time-tolerance") {
		cfg.Tolerances.TimeSeconds = timeTolerance
	}
	if f.Changed("rate-tolerance") {
		cfg.Tolerances.Rate = rateTolerance
	}
	if f.Changed("start") {
		cfg.Prune.StartTime = startTime
	}
	if f.Changed("end") {
		cfg.Prune.EndTime = endTime
	}
	if f.Changed("selection") {
		cfg.Output.Selection = selectionFile
	}
	if f.Changed("quality") {
		cfg.Output.Quality = rewriteQuality
	}
	if f.Changed("summary") {
		cfg.Output.Summary = printSummary
	}
	if f.Changed("report") {
		cfg.Output.Report = reportFile
	}
	if f.Changed("budget") {
		cfg.Archive.Budget = archiveBudget
	}
	if f.Changed("idle-timeout") {
		cfg.Archive.IdleTimeout = idleTimeout
	}
	if f.Changed("otlp-endpoint") {
		cfg.Telemetry.Endpoint = otlpEndpoint
	}
}
