package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"dtiqc/internal/models"
)

// CohortRow is one subject's line in the cohort summary.
type CohortRow struct {
	Subject       string
	Sessions      string
	Overall       models.Status
	RigidDice     string
	AffineDice    string
	BrainVolumeML string
	HasReport     bool
	ReportPath    string

	values []string
}

// Cohort aggregates per-subject summaries across the study.
type Cohort struct {
	Rows    []CohortRow
	Total   int
	Pass    int
	Warning int
	Fail    int
	Missing int

	HasDice         bool
	MeanRigidDice   float64
	MedianRigidDice float64
}

// Worst returns the most severe overall status seen across the
// cohort, or PASS for an empty cohort.
func (c *Cohort) Worst() models.Status {
	worst := models.StatusPass
	for _, row := range c.Rows {
		if statusRank(row.Overall) > statusRank(worst) {
			worst = row.Overall
		}
	}
	return worst
}

// CompileCohort gathers every subject's summary CSV under the QC root
// and writes the cohort table and HTML index. Subjects without a
// compiled summary appear as MISSING rows rather than being dropped.
func (c *Compiler) CompileCohort() (*Cohort, error) {
	qcRoot := c.cfg.QCRoot()
	entries, err := os.ReadDir(qcRoot)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cohort := &Cohort{}
	var diceVals []float64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		subject := e.Name()
		row := CohortRow{
			Subject: subject,
			Overall: models.StatusMissing,
			values:  missingSummaryValues(subject),
		}

		summaryPath := filepath.Join(qcRoot, subject, subject+"_qc_summary.csv")
		if fields, rerr := readSummaryRow(summaryPath); rerr == nil && fields != nil {
			row.Sessions = fields["sessions"]
			row.Overall = models.Status(fields["overall_status"])
			row.RigidDice = fields["mni_rigid_dice"]
			row.AffineDice = fields["mni_affine_dice"]
			row.BrainVolumeML = fields["brain_volume_ml"]
			row.values = orderedSummaryValues(fields)
		} else if rerr != nil && !os.IsNotExist(rerr) {
			c.log.WithError(rerr).WithField("subject", subject).Warn("unreadable subject summary")
		}

		reportPath := filepath.Join(qcRoot, subject, subject+"_report.html")
		if _, serr := os.Stat(reportPath); serr == nil {
			row.HasReport = true
			row.ReportPath = filepath.Join(subject, subject+"_report.html")
		}

		if row.RigidDice != "" {
			if v, perr := strconv.ParseFloat(row.RigidDice, 64); perr == nil {
				diceVals = append(diceVals, v)
			}
		}

		cohort.Rows = append(cohort.Rows, row)
		cohort.Total++
		switch row.Overall {
		case models.StatusPass:
			cohort.Pass++
		case models.StatusWarning:
			cohort.Warning++
		case models.StatusFail:
			cohort.Fail++
		case models.StatusMissing:
			cohort.Missing++
		}
	}

	if len(diceVals) > 0 {
		cohort.HasDice = true
		cohort.MeanRigidDice = stat.Mean(diceVals, nil)
		sort.Float64s(diceVals)
		cohort.MedianRigidDice = stat.Quantile(0.5, stat.Empirical, diceVals, nil)
	}

	if err := os.MkdirAll(qcRoot, 0o755); err != nil {
		return nil, err
	}
	if err := writeCohortCSV(filepath.Join(qcRoot, "all_subjects_summary.csv"), cohort); err != nil {
		return nil, err
	}
	if err := writeCohortHTML(filepath.Join(qcRoot, "DTI_QC_Summary.html"), cohort); err != nil {
		return nil, err
	}
	if err := writeCohortGuide(qcRoot); err != nil {
		return nil, err
	}
	return cohort, nil
}

// missingSummaryValues is the placeholder row for a subject whose
// summary was never compiled.
func missingSummaryValues(subject string) []string {
	row := make([]string, len(summaryHeader))
	row[0] = subject
	row[2] = string(models.StatusMissing)
	return row
}

// orderedSummaryValues projects a header-keyed row back into column
// order so the cohort table stays aligned with the per-subject files.
func orderedSummaryValues(fields map[string]string) []string {
	row := make([]string, len(summaryHeader))
	for i, name := range summaryHeader {
		row[i] = fields[name]
	}
	return row
}

// writeCohortCSV rebuilds the cohort table from scratch on every run.
func writeCohortCSV(path string, c *Cohort) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	for _, row := range c.Rows {
		if err := w.Write(row.values); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
