package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"dtiqc/internal/models"
)

// summaryHeader defines the flattened per-subject summary row, shared
// by the per-subject CSV and the cohort table.
var summaryHeader = []string{
	"subject_id", "sessions", "overall_status",
	"file_existence_status", "within_registration_status", "mni_registration_status",
	"mni_rigid_dice", "mni_affine_dice",
	"brain_volume_ml", "fa_mean", "fa_std", "md_mean", "md_std",
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func sectionStatus(s *Section) string {
	if s == nil {
		return ""
	}
	if !s.Available && s.Status == "" {
		return string(models.StatusMissing)
	}
	return string(s.Status)
}

// summaryValues flattens a result into the summary row.
func summaryValues(r *Result) []string {
	row := make([]string, len(summaryHeader))
	row[0] = r.Subject
	row[1] = strings.Join(r.Sessions, ";")
	row[2] = string(r.OverallStatus)
	row[3] = sectionStatus(r.FileExistence)
	row[4] = sectionStatus(r.WithinRegistration)
	row[5] = sectionStatus(r.MNIRegistration)

	if m, ok := r.MNIRegistration.MetricFor("mni_rigid_dice"); ok {
		row[6] = fmtFloat(m)
	}
	if m, ok := r.MNIRegistration.MetricFor("mni_affine_dice"); ok {
		row[7] = fmtFloat(m)
	}

	if len(r.BrainVolumes) > 0 {
		vols := make([]float64, len(r.BrainVolumes))
		for i, bv := range r.BrainVolumes {
			vols[i] = bv.VolumeML
		}
		row[8] = fmtFloat(stat.Mean(vols, nil))
	}

	if s, ok := r.MapStatistics["fa"]; ok {
		row[9], row[10] = fmtFloat(s.Mean), fmtFloat(s.Std)
	}
	if s, ok := r.MapStatistics["md"]; ok {
		row[11], row[12] = fmtFloat(s.Mean), fmtFloat(s.Std)
	}
	return row
}

// writeSummaryCSV writes the one-row flattened summary for a subject.
func writeSummaryCSV(path string, r *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	if err := w.Write(summaryValues(r)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// readSummaryRow loads a per-subject summary back as a header-keyed
// map. Unknown extra columns are preserved-by-name, missing ones read
// as empty.
func readSummaryRow(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}

	row := make(map[string]string, len(rows[0]))
	for i, name := range rows[0] {
		if i < len(rows[1]) {
			row[name] = rows[1][i]
		}
	}
	return row, nil
}
