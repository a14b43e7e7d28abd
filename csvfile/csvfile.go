// Package csvfile reads and writes the CSV artefacts produced by the batch
// commands and served by the stats endpoint.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adonese/plstats/apperr"
)

// Write replaces path with header plus rows. The file is written next to
// its destination and renamed so readers never see a partial file.
func Write(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Read returns the data rows of path keyed by the header names. A missing
// file is reported as apperr.ErrStatsNotReady.
func Read(path string, required ...string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(err, apperr.ErrStatsNotReady, fmt.Sprintf("%s has not been generated yet", filepath.Base(path)))
		}
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse %s: missing header", path)
	}
	header := records[0]
	index := make(map[string]bool, len(header))
	for _, h := range header {
		index[h] = true
	}
	for _, r := range required {
		if !index[r] {
			return nil, fmt.Errorf("parse %s: missing column %q", path, r)
		}
	}

	out := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		out = append(out, row)
	}
	return out, nil
}
