package archive

import (
	"os"
	"path/filepath"
	"time"

	"github.com/seisflow/seisflow/internal/model"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
)

// Governor tracks the process-wide budget of open file handles, shared
// between input files and archive output files. The run is single-threaded
// so plain counters suffice.
type Governor struct {
	budget int
	margin int

	inputOpen   int
	archiveOpen int
}

// DefaultBudget is the archive handle budget when none is configured.
const DefaultBudget = 50

// NewGovernor creates a governor with the given budget and safety margin.
func NewGovernor(budget, margin int) *Governor {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if margin < 0 {
		margin = 0
	}
	if margin >= budget {
		margin = budget - 1
	}
	return &Governor{budget: budget, margin: margin}
}

// Budget returns the configured handle budget.
func (g *Governor) Budget() int { return g.budget }

// OpenHandles returns the combined count of open handles.
func (g *Governor) OpenHandles() int { return g.inputOpen + g.archiveOpen }

// NoteInputOpen records an input file handle being opened.
func (g *Governor) NoteInputOpen() { g.inputOpen++ }

// NoteInputClose records an input file handle being closed.
func (g *Governor) NoteInputClose() { g.inputOpen-- }

// atMargin reports whether opening one more handle would push the combined
// count into the safety margin.
func (g *Governor) atMargin() bool {
	return g.OpenHandles()+1 > g.budget-g.margin
}

// entry is one open archive stream: a handle plus eviction state. The
// in-use flag protects the entry from the eviction pass triggered by its
// own write; it is explicit state, never an encoded timestamp.
type entry struct {
	file       *os.File
	path       string
	lastActive time.Time
	inUse      bool
}

// Writer routes records into archive files selected by a compiled path
// template, holding open handles in a cache bounded by the governor.
type Writer struct {
	tmpl        *Template
	gov         *Governor
	idleTimeout time.Duration

	entries map[string]*entry

	// now is replaceable for tests.
	now func() time.Time

	bytesWritten  int64
	opens, evicts int
}

// DefaultIdleTimeout is the initial idle-eviction threshold.
const DefaultIdleTimeout = 30 * time.Second

// NewWriter creates an archive writer over a compiled template.
func NewWriter(tmpl *Template, gov *Governor, idleTimeout time.Duration) *Writer {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Writer{
		tmpl:        tmpl,
		gov:         gov,
		idleTimeout: idleTimeout,
		entries:     make(map[string]*entry),
		now:         time.Now,
	}
}

// Write routes one record's bytes to the archive file its defining fields
// select, opening the file (and its directories) on first use.
func (w *Writer) Write(rec *model.RecordRef, data []byte) error {
	key, path := w.tmpl.Expand(rec)

	e, ok := w.entries[key]
	if !ok {
		var err error
		e, err = w.open(key, path)
		if err != nil {
			return err
		}
	}

	e.inUse = true
	defer func() { e.inUse = false }()

	if _, err := e.file.Write(data); err != nil {
		return seiserr.Wrap(err, seiserr.CodeWriteFailed, "write archive record").
			WithContext("path", e.path)
	}
	e.lastActive = w.now()
	w.bytesWritten += int64(len(data))
	return nil
}

// open creates a new stream entry, evicting idle entries first when the
// governor is at its margin. Files open in append mode so a previously
// evicted key continues where it left off.
func (w *Writer) open(key, path string) (*entry, error) {
	if w.gov.atMargin() {
		w.evictIdle()
	}

	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, seiserr.Wrap(err, seiserr.CodeMkdirFailed, "create archive directory").
				WithContext("dir", dir)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, seiserr.Wrap(err, seiserr.CodeWriteFailed, "open archive file").
			WithContext("path", path)
	}

	e := &entry{file: f, path: path, lastActive: w.now()}
	w.entries[key] = e
	w.gov.archiveOpen++
	w.opens++
	return e, nil
}

// evictIdle closes entries idle past the threshold, progressively halving
// the threshold down to zero until capacity frees or nothing evictable
// remains. Entries in use by the current call are never closed.
func (w *Writer) evictIdle() {
	now := w.now()
	threshold := w.idleTimeout
	for {
		for key, e := range w.entries {
			if e.inUse {
				continue
			}
			if now.Sub(e.lastActive) >= threshold {
				w.close(key, e)
			}
		}
		if !w.gov.atMargin() || threshold == 0 {
			return
		}
		threshold /= 2
	}
}

func (w *Writer) close(key string, e *entry) {
	e.file.Close()
	delete(w.entries, key)
	w.gov.archiveOpen--
	w.evicts++
}

// OpenStreams returns the number of currently open archive handles.
func (w *Writer) OpenStreams() int {
	return len(w.entries)
}

// BytesWritten returns the total bytes streamed to the archive.
func (w *Writer) BytesWritten() int64 {
	return w.bytesWritten
}

// CloseAll closes and frees every remaining entry unconditionally.
func (w *Writer) CloseAll() error {
	var firstErr error
	for key, e := range w.entries {
		if err := e.file.Close(); err != nil && firstErr == nil {
			firstErr = seiserr.Wrap(err, seiserr.CodeWriteFailed, "close archive file").
				WithContext("path", e.path)
		}
		delete(w.entries, key)
		w.gov.archiveOpen--
	}
	return firstErr
}
