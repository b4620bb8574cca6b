package assemble

import (
	"io"
	"os"

	"github.com/seisflow/seisflow/pkg/archive"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
)

// FileTable owns the run's input files. Files open lazily on first read,
// stay open until the run finishes, and count against the shared handle
// budget.
type FileTable struct {
	paths []string
	files []*os.File
	gov   *archive.Governor
}

// NewFileTable creates a table over the given input paths.
func NewFileTable(paths []string, gov *archive.Governor) *FileTable {
	return &FileTable{
		paths: paths,
		files: make([]*os.File, len(paths)),
		gov:   gov,
	}
}

// Add registers another input path and returns its file ID.
func (t *FileTable) Add(path string) int {
	t.paths = append(t.paths, path)
	t.files = append(t.files, nil)
	return len(t.paths) - 1
}

// Len returns the number of registered inputs.
func (t *FileTable) Len() int {
	return len(t.paths)
}

// Path returns the path of a file ID.
func (t *FileTable) Path(id int) string {
	return t.paths[id]
}

// Open returns the open handle for a file ID, opening it on first use.
func (t *FileTable) Open(id int) (*os.File, error) {
	if t.files[id] != nil {
		return t.files[id], nil
	}
	f, err := os.Open(t.paths[id])
	if err != nil {
		if os.IsNotExist(err) {
			return nil, seiserr.FileNotFound(t.paths[id])
		}
		return nil, seiserr.Wrap(err, seiserr.CodeFilePermission, "open input file").
			WithContext("path", t.paths[id])
	}
	t.files[id] = f
	if t.gov != nil {
		t.gov.NoteInputOpen()
	}
	return f, nil
}

// Size returns the byte size of a file ID.
func (t *FileTable) Size(id int) (int64, error) {
	f, err := t.Open(id)
	if err != nil {
		return 0, err
	}
	st, err := f.Stat()
	if err != nil {
		return 0, seiserr.Wrap(err, seiserr.CodeFileRead, "stat input file").
			WithContext("path", t.paths[id])
	}
	return st.Size(), nil
}

// ReadAt fills buf from the stored offset of a file ID.
func (t *FileTable) ReadAt(id int, buf []byte, offset int64) error {
	f, err := t.Open(id)
	if err != nil {
		return err
	}
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return seiserr.Wrap(err, seiserr.CodeFileRead, "read record bytes").
			WithContext("path", t.paths[id]).
			WithContext("offset", offset)
	}
	return nil
}

// CloseAll closes every open input handle.
func (t *FileTable) CloseAll() {
	for i, f := range t.files {
		if f != nil {
			f.Close()
			t.files[i] = nil
			if t.gov != nil {
				t.gov.NoteInputClose()
			}
		}
	}
}
