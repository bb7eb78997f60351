package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dtiqc/internal/models"
	"dtiqc/pkg/config"
	"dtiqc/pkg/nifti"
	"dtiqc/pkg/qc"
	"dtiqc/pkg/visualization"
)

// Compiler renders per-subject and cohort reports from the QC tables.
// The renderer is optional: a nil renderer disables the thumbnail
// section without affecting anything else.
type Compiler struct {
	cfg      *config.Config
	renderer *visualization.Renderer
	log      *logrus.Entry
}

// NewCompiler returns a compiler for the given configuration. Pass a
// nil renderer to omit thumbnails.
func NewCompiler(cfg *config.Config, renderer *visualization.Renderer) *Compiler {
	return &Compiler{
		cfg:      cfg,
		renderer: renderer,
		log:      logrus.WithField("component", "report"),
	}
}

// CompileSubject builds the result for one subject and writes its JSON,
// summary CSV and HTML report under QC/<subject>/. Absent tables become
// unavailable sections; the only errors returned are output failures.
func (c *Compiler) CompileSubject(subject string) (*Result, error) {
	log := c.log.WithField("subject", subject)
	qcDir := filepath.Join(c.cfg.QCRoot(), subject)

	result := &Result{
		Subject:  subject,
		Sessions: qc.DiscoverSessions(qcDir),
	}

	dirs := []string{qcDir}
	if len(result.Sessions) > 0 {
		dirs = dirs[:0]
		for _, sess := range result.Sessions {
			dirs = append(dirs, filepath.Join(qcDir, sess))
		}
	}

	result.FileExistence = c.loadSection(dirs, qc.FileExistenceCSV)
	result.MNIRegistration = c.loadSection(dirs, qc.MNIRegCSV)
	if c.cfg.Session.ScansPerSession > 1 {
		result.WithinRegistration = c.loadSection(dirs, qc.WithinRegCSV)
	} else {
		result.WithinRegistration = &Section{
			Status: models.StatusSkipped,
			Reason: "single scan per session",
		}
	}

	result.BrainVolumes = c.loadBrainVolumes(subject, result.Sessions)
	faVol := c.loadMapStats(subject, result.Sessions, result)
	result.OverallStatus = result.Overall()

	var thumbnails []string
	if c.renderer != nil && faVol != nil {
		names, err := c.renderer.SaveOrthogonal(faVol, filepath.Join(qcDir, "thumbnails"), "fa")
		if err != nil {
			log.WithError(err).Warn("thumbnail rendering failed, section omitted")
		}
		for _, n := range names {
			thumbnails = append(thumbnails, filepath.Join("thumbnails", n))
		}
	}

	if err := c.writeJSON(qcDir, result); err != nil {
		return result, err
	}
	if err := writeSummaryCSV(filepath.Join(qcDir, subject+"_qc_summary.csv"), result); err != nil {
		return result, err
	}
	if err := c.writeSubjectHTML(qcDir, result, thumbnails); err != nil {
		return result, err
	}
	if err := writeSubjectREADME(qcDir, result); err != nil {
		return result, err
	}

	log.WithField("status", result.OverallStatus).Info("subject report compiled")
	return result, nil
}

// loadSection merges a table across session directories. The section is
// available when at least one table file was readable.
func (c *Compiler) loadSection(dirs []string, table string) *Section {
	sec := &Section{}
	for _, dir := range dirs {
		path := filepath.Join(dir, table)
		records, err := qc.ReadRecords(path)
		if err != nil {
			if !os.IsNotExist(err) {
				c.log.WithField("path", path).WithError(err).Warn("unreadable QC table")
			}
			continue
		}
		sec.Available = true
		sec.Records = append(sec.Records, records...)
	}
	if !sec.Available {
		sec.Reason = table + " not found"
		return sec
	}
	sec.Status = worstStatus(sec.Records)
	return sec
}

// loadBrainVolumes pulls brain volume measurements out of the skull
// stripping step's qc_summary.csv, when present.
func (c *Compiler) loadBrainVolumes(subject string, sessions []string) []BrainVolume {
	targets := sessions
	if len(targets) == 0 {
		targets = []string{""}
	}

	var volumes []BrainVolume
	for _, sess := range targets {
		path := filepath.Join(qc.StepDir(c.cfg.SkullStripRoot(), subject, sess), "qc_summary.csv")
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		rows, err := csv.NewReader(f).ReadAll()
		f.Close()
		if err != nil || len(rows) < 2 {
			continue
		}

		scanCol, volCol := -1, -1
		for i, name := range rows[0] {
			switch name {
			case "scan":
				scanCol = i
			case "brain_volume_ml":
				volCol = i
			}
		}
		if volCol < 0 {
			continue
		}
		for _, row := range rows[1:] {
			vol, err := strconv.ParseFloat(row[volCol], 64)
			if err != nil {
				continue
			}
			bv := BrainVolume{VolumeML: vol}
			if scanCol >= 0 {
				bv.Scan = row[scanCol]
			}
			volumes = append(volumes, bv)
		}
	}
	return volumes
}

// Scalar maps produced by the tensor fitting step.
var scalarMaps = []struct {
	key  string
	file string
}{
	{"fa", "dipy_fa.nii.gz"},
	{"md", "dipy_md.nii.gz"},
}

// loadMapStats computes FA/MD summary statistics over positive voxels
// and returns the FA volume for thumbnail rendering, if it was loaded.
func (c *Compiler) loadMapStats(subject string, sessions []string, result *Result) *nifti.Volume {
	targets := sessions
	if len(targets) == 0 {
		targets = []string{""}
	}

	var faVol *nifti.Volume
	for _, m := range scalarMaps {
		for _, sess := range targets {
			path := filepath.Join(qc.StepDir(c.cfg.DtifitRoot(), subject, sess), m.file)
			vol, err := nifti.ReadFile(path)
			if err != nil {
				if !os.IsNotExist(err) {
					c.log.WithField("path", path).WithError(err).Warn("unreadable scalar map")
				}
				continue
			}

			stats, ok := mapStatistics(vol.Data)
			if !ok {
				c.log.WithField("path", path).Warn("scalar map has no positive voxels")
				continue
			}
			if result.MapStatistics == nil {
				result.MapStatistics = make(map[string]MapStats)
			}
			result.MapStatistics[m.key] = stats
			if m.key == "fa" {
				faVol = vol
			}
			break
		}
	}
	return faVol
}

// mapStatistics summarizes the positive voxels of a scalar map. The
// zero background is excluded the same way the tensor fitting step
// excludes it from its own summaries.
func mapStatistics(data []float64) (MapStats, bool) {
	vals := make([]float64, 0, len(data))
	for _, d := range data {
		if d > 0 {
			vals = append(vals, d)
		}
	}
	if len(vals) == 0 {
		return MapStats{}, false
	}
	std := 0.0
	if len(vals) > 1 {
		std = stat.StdDev(vals, nil)
	}
	return MapStats{
		Mean: stat.Mean(vals, nil),
		Std:  std,
		Min:  floats.Min(vals),
		Max:  floats.Max(vals),
	}, true
}

// writeJSON writes the result object. Encoding is deterministic: struct
// fields keep declaration order and map keys are sorted, so unchanged
// inputs reproduce identical bytes.
func (c *Compiler) writeJSON(qcDir string, result *Result) error {
	if err := os.MkdirAll(qcDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(qcDir, result.Subject+"_qc_results.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
