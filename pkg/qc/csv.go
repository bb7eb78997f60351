package qc

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"dtiqc/internal/models"
)

// Fixed QC table filenames under QC/<subject>[/<session>]/.
const (
	FileExistenceCSV = "file_existence.csv"
	WithinRegCSV     = "within_subject_registration_qc.csv"
	MNIRegCSV        = "mni_registration_qc.csv"
)

var recordHeader = []string{"subject_id", "session", "check", "status", "metric", "threshold", "path"}

// WriteRecords writes one QC table. Output is deterministic: rows keep
// their input order and floats use the shortest round-trip form, so
// unchanged inputs reproduce byte-identical tables.
func WriteRecords(path string, records []models.Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(recordHeader); err != nil {
		return err
	}
	for _, r := range records {
		metric := ""
		if m, ok := r.MetricValue(); ok {
			metric = strconv.FormatFloat(m, 'f', -1, 64)
		}
		row := []string{
			r.Subject,
			r.Session,
			r.Check,
			string(r.Status),
			metric,
			strconv.FormatFloat(r.Threshold, 'f', -1, 64),
			r.Path,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadRecords loads a QC table written by WriteRecords. A missing file
// surfaces as the underlying not-exist error so callers can treat the
// section as unavailable.
func ReadRecords(path string) ([]models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]models.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(recordHeader) {
			return nil, fmt.Errorf("parsing %s: row has %d columns, want %d", path, len(row), len(recordHeader))
		}
		rec := models.Record{
			Subject: row[0],
			Session: row[1],
			Check:   row[2],
			Status:  models.Status(row[3]),
			Path:    row[6],
		}
		if row[4] != "" {
			m, err := strconv.ParseFloat(row[4], 64)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: bad metric %q: %w", path, row[4], err)
			}
			rec.Metric = &m
		}
		if row[5] != "" {
			thr, err := strconv.ParseFloat(row[5], 64)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: bad threshold %q: %w", path, row[5], err)
			}
			rec.Threshold = thr
		}
		records = append(records, rec)
	}
	return records, nil
}
