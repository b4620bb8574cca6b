// Package summary accumulates per-identity output tallies, renders the
// styled console report, and emits the machine-parsable summary lines.
package summary

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/seisflow/seisflow/internal/model"
)

// Tally is the running output tally for one identity/quality pair.
type Tally struct {
	Identity string
	Quality  model.Quality
	Start    model.Tick
	End      model.Tick
	Bytes    int64
	Records  int64
	Samples  int64
}

// Line formats the tally as one summary line. The field order and the pipe
// delimiter are a contract for downstream parsers:
//
//	identity|quality|start|end|bytes|samples
//
// with RFC3339Nano timestamps.
func (t *Tally) Line() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		t.Identity, t.Quality, t.Start, t.End, t.Bytes, t.Samples)
}

// Set accumulates tallies keyed by identity and quality.
type Set struct {
	byKey map[string]*Tally
	order []string
}

// NewSet creates an empty tally set.
func NewSet() *Set {
	return &Set{byKey: make(map[string]*Tally)}
}

// Add folds one emitted record into the set.
func (s *Set) Add(identity string, quality model.Quality, start, end model.Tick, bytes int64, samples int64) {
	key := identity + "|" + quality.String()
	t, ok := s.byKey[key]
	if !ok {
		t = &Tally{
			Identity: identity,
			Quality:  quality,
			Start:    start,
			End:      end,
		}
		s.byKey[key] = t
		s.order = append(s.order, key)
	}
	if start < t.Start {
		t.Start = start
	}
	if end > t.End {
		t.End = end
	}
	t.Bytes += bytes
	t.Records++
	t.Samples += samples
}

// Tallies returns the tallies in first-seen order.
func (s *Set) Tallies() []*Tally {
	out := make([]*Tally, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byKey[key])
	}
	return out
}

// WriteLines writes the parsable summary stream, one line per tally,
// sorted by identity then quality for a stable output order.
func (s *Set) WriteLines(w io.Writer) error {
	tallies := s.Tallies()
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Identity != tallies[j].Identity {
			return tallies[i].Identity < tallies[j].Identity
		}
		return tallies[i].Quality.Rank() < tallies[j].Quality.Rank()
	})
	for _, t := range tallies {
		if _, err := fmt.Fprintln(w, t.Line()); err != nil {
			return err
		}
	}
	return nil
}

// Colors (Swiss minimal, per house style)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// RunStats is what the console report shows besides the tallies.
type RunStats struct {
	RunID        string
	RecordsIn    int
	RecordsOut   int64
	Omitted      int
	Clipped      int
	BytesWritten int64
	Warnings     int
}

// Render prints the styled console report.
func Render(w io.Writer, stats RunStats, tallies []*Tally) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  SEISFLOW")+mutedStyle.Render("  run "+stats.RunID))
	fmt.Fprintln(w, mutedStyle.Render("  ─────────────────────────────────────"))

	for _, t := range tallies {
		fmt.Fprintf(w, "  %s %s  %s → %s  %s\n",
			titleStyle.Render(t.Identity),
			accentStyle.Render(t.Quality.String()),
			mutedStyle.Render(t.Start.String()),
			mutedStyle.Render(t.End.String()),
			mutedStyle.Render(fmt.Sprintf("%d recs / %d samples / %s", t.Records, t.Samples, formatBytes(t.Bytes))))
	}

	fmt.Fprintln(w, mutedStyle.Render("  ─────────────────────────────────────"))
	line := fmt.Sprintf("  %d in, %d out, %d omitted, %d clipped, %s written",
		stats.RecordsIn, stats.RecordsOut, stats.Omitted, stats.Clipped, formatBytes(stats.BytesWritten))
	if stats.Warnings > 0 {
		fmt.Fprintln(w, accentStyle.Render(line+fmt.Sprintf(", %d warnings", stats.Warnings)))
	} else {
		fmt.Fprintln(w, successStyle.Render(line))
	}
	fmt.Fprintln(w)
}

// Warn prints a styled record-local warning.
func Warn(w io.Writer, err error) {
	fmt.Fprintln(w, accentStyle.Render("  ! ")+mutedStyle.Render(err.Error()))
}

// NewScanBar creates the catalog-scan progress bar.
func NewScanBar(totalBytes int64) *progressbar.ProgressBar {
	return progressbar.DefaultBytes(totalBytes, "  scanning")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
