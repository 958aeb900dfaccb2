// Package output writes the files an apply run produces.
package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// StampLayout formats the run timestamp embedded in file names.
const StampLayout = "20060102_150405"

// Files are the final paths of a completed write.
type Files struct {
	Updated string `json:"updated"`
	Report  string `json:"report"`
}

// Writer places output files in one directory.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Dir() string { return w.dir }

// Write stores updated_<stamp>.csv and report_<stamp>.csv. Both files are
// staged as temps and only renamed into place once both are on disk; on any
// failure the temps are removed and nothing new becomes visible.
func (w *Writer) Write(stamp string, updated, report []byte) (Files, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := Files{
		Updated: filepath.Join(w.dir, "updated_"+stamp+".csv"),
		Report:  filepath.Join(w.dir, "report_"+stamp+".csv"),
	}

	updTmp, err := w.stage(updated)
	if err != nil {
		return Files{}, err
	}
	defer os.Remove(updTmp)

	repTmp, err := w.stage(report)
	if err != nil {
		return Files{}, err
	}
	defer os.Remove(repTmp)

	if err := os.Rename(updTmp, files.Updated); err != nil {
		return Files{}, fmt.Errorf("failed to publish updated file: %w", err)
	}
	if err := os.Rename(repTmp, files.Report); err != nil {
		os.Remove(files.Updated)
		return Files{}, fmt.Errorf("failed to publish report file: %w", err)
	}
	return files, nil
}

func (w *Writer) stage(data []byte) (string, error) {
	f, err := os.CreateTemp(w.dir, ".staging-*.csv")
	if err != nil {
		return "", fmt.Errorf("failed to create temp output: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp output: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to sync temp output: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp output: %w", err)
	}
	return f.Name(), nil
}
