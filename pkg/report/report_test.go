package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"dtiqc/internal/models"
	"dtiqc/pkg/config"
	"dtiqc/pkg/nifti"
	"dtiqc/pkg/qc"
	"dtiqc/pkg/visualization"
)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.ErrorLevel)
	os.Exit(m.Run())
}

func testCfg(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.OutputDir = t.TempDir()
	return cfg
}

// scalarVolume builds a small map with a positive block surrounded by
// zero background.
func scalarVolume(peak float64) *nifti.Volume {
	v := &nifti.Volume{Nx: 6, Ny: 6, Nz: 6, Data: make([]float64, 6*6*6)}
	v.PixDim[1], v.PixDim[2], v.PixDim[3] = 1, 1, 1
	for z := 2; z < 4; z++ {
		for y := 2; y < 4; y++ {
			for x := 2; x < 4; x++ {
				v.Data[z*36+y*6+x] = peak
			}
		}
	}
	return v
}

func writeText(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeSubjectFixture lays out QC tables plus skull stripping and
// tensor fitting artifacts for one subject. An empty session writes the
// flat layout.
func writeSubjectFixture(t *testing.T, cfg *config.Config, subject, session string, rigidDice float64, rigidStatus models.Status) {
	t.Helper()
	qcDir := qc.StepDir(cfg.QCRoot(), subject, session)

	existence := []models.Record{
		{Subject: subject, Session: session, Check: "mni_rigid_volume", Status: models.StatusPass, Path: "x.nii.gz"},
		{Subject: subject, Session: session, Check: "fa_map", Status: models.StatusPass, Path: "dipy_fa.nii.gz"},
	}
	if err := qc.WriteRecords(filepath.Join(qcDir, qc.FileExistenceCSV), existence); err != nil {
		t.Fatal(err)
	}

	mni := []models.Record{
		{Subject: subject, Session: session, Check: "mni_rigid_dice", Status: rigidStatus, Metric: models.Float(rigidDice), Threshold: 0.8},
		{Subject: subject, Session: session, Check: "mni_affine_dice", Status: models.StatusPass, Metric: models.Float(0.91), Threshold: 0.8},
	}
	if err := qc.WriteRecords(filepath.Join(qcDir, qc.MNIRegCSV), mni); err != nil {
		t.Fatal(err)
	}

	writeText(t, filepath.Join(qc.StepDir(cfg.SkullStripRoot(), subject, session), "qc_summary.csv"),
		"scan,brain_volume_ml\n0,1234.5\n1,1250.25\n")

	dtifit := qc.StepDir(cfg.DtifitRoot(), subject, session)
	if err := nifti.WriteFile(filepath.Join(dtifit, "dipy_fa.nii.gz"), scalarVolume(0.75)); err != nil {
		t.Fatal(err)
	}
	if err := nifti.WriteFile(filepath.Join(dtifit, "dipy_md.nii.gz"), scalarVolume(0.002)); err != nil {
		t.Fatal(err)
	}
}

func TestWorstStatus(t *testing.T) {
	rec := func(s models.Status) models.Record { return models.Record{Status: s} }
	tests := []struct {
		name    string
		records []models.Record
		want    models.Status
	}{
		{"empty", nil, models.StatusMissing},
		{"all pass", []models.Record{rec(models.StatusPass), rec(models.StatusPass)}, models.StatusPass},
		{"warning beats pass", []models.Record{rec(models.StatusPass), rec(models.StatusWarning)}, models.StatusWarning},
		{"fail beats missing", []models.Record{rec(models.StatusMissing), rec(models.StatusFail)}, models.StatusFail},
		{"missing beats warning", []models.Record{rec(models.StatusWarning), rec(models.StatusMissing)}, models.StatusMissing},
		{"only skipped", []models.Record{rec(models.StatusSkipped)}, models.StatusSkipped},
		{"skipped ignored", []models.Record{rec(models.StatusSkipped), rec(models.StatusPass)}, models.StatusPass},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := worstStatus(tc.records); got != tc.want {
				t.Errorf("worstStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResultOverall(t *testing.T) {
	sec := func(s models.Status) *Section { return &Section{Status: s, Available: true} }

	t.Run("no sections", func(t *testing.T) {
		r := &Result{}
		if got := r.Overall(); got != models.StatusMissing {
			t.Errorf("Overall = %s, want MISSING", got)
		}
	})
	t.Run("skipped section ignored", func(t *testing.T) {
		r := &Result{
			FileExistence:      sec(models.StatusPass),
			WithinRegistration: &Section{Status: models.StatusSkipped},
			MNIRegistration:    sec(models.StatusPass),
		}
		if got := r.Overall(); got != models.StatusPass {
			t.Errorf("Overall = %s, want PASS", got)
		}
	})
	t.Run("fail dominates", func(t *testing.T) {
		r := &Result{
			FileExistence:   sec(models.StatusMissing),
			MNIRegistration: sec(models.StatusFail),
		}
		if got := r.Overall(); got != models.StatusFail {
			t.Errorf("Overall = %s, want FAIL", got)
		}
	})
}

func TestCompileSubject(t *testing.T) {
	cfg := testCfg(t)
	writeSubjectFixture(t, cfg, "sub-01", "2024-01-05", 0.75, models.StatusWarning)

	c := NewCompiler(cfg, nil)
	res, err := c.CompileSubject("sub-01")
	if err != nil {
		t.Fatalf("CompileSubject: %v", err)
	}

	if diff := cmp.Diff([]string{"2024-01-05"}, res.Sessions); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if res.OverallStatus != models.StatusWarning {
		t.Errorf("overall = %s, want WARNING", res.OverallStatus)
	}
	if res.WithinRegistration.Status != models.StatusSkipped {
		t.Errorf("within status = %s, want SKIPPED", res.WithinRegistration.Status)
	}
	if len(res.BrainVolumes) != 2 {
		t.Fatalf("brain volumes = %d, want 2", len(res.BrainVolumes))
	}
	fa, ok := res.MapStatistics["fa"]
	if !ok {
		t.Fatal("missing fa map statistics")
	}
	if fa.Mean != 0.75 || fa.Std != 0 {
		t.Errorf("fa stats = %+v, want mean 0.75 std 0", fa)
	}
	if _, ok := res.MapStatistics["md"]; !ok {
		t.Error("missing md map statistics")
	}

	qcDir := filepath.Join(cfg.QCRoot(), "sub-01")
	for _, name := range []string{"sub-01_qc_results.json", "sub-01_qc_summary.csv", "sub-01_report.html", "README.md"} {
		if _, err := os.Stat(filepath.Join(qcDir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	readme, err := os.ReadFile(filepath.Join(qcDir, "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(readme, []byte("sub-01")) || !bytes.Contains(readme, []byte("WARNING")) {
		t.Error("README should name the subject and its overall status")
	}

	f, err := os.Open(filepath.Join(qcDir, "sub-01_qc_summary.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("summary rows = %d, want 2", len(rows))
	}
	if diff := cmp.Diff(summaryHeader, rows[0]); diff != "" {
		t.Errorf("summary header mismatch (-want +got):\n%s", diff)
	}
	got := map[string]string{}
	for i, name := range rows[0] {
		got[name] = rows[1][i]
	}
	if got["subject_id"] != "sub-01" || got["overall_status"] != "WARNING" {
		t.Errorf("summary row = %v", got)
	}
	if got["mni_rigid_dice"] != "0.75" {
		t.Errorf("mni_rigid_dice = %q, want 0.75", got["mni_rigid_dice"])
	}
	if got["brain_volume_ml"] != "1242.375" {
		t.Errorf("brain_volume_ml = %q, want 1242.375", got["brain_volume_ml"])
	}
}

func TestCompileSubjectIdempotent(t *testing.T) {
	cfg := testCfg(t)
	writeSubjectFixture(t, cfg, "sub-01", "2024-01-05", 0.95, models.StatusPass)
	c := NewCompiler(cfg, nil)

	read := func(name string) []byte {
		t.Helper()
		data, err := os.ReadFile(filepath.Join(cfg.QCRoot(), "sub-01", name))
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	if _, err := c.CompileSubject("sub-01"); err != nil {
		t.Fatal(err)
	}
	json1, csv1 := read("sub-01_qc_results.json"), read("sub-01_qc_summary.csv")

	if _, err := c.CompileSubject("sub-01"); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(json1, read("sub-01_qc_results.json")) {
		t.Error("JSON output changed between identical runs")
	}
	if !bytes.Equal(csv1, read("sub-01_qc_summary.csv")) {
		t.Error("summary CSV changed between identical runs")
	}
}

func TestCompileSubjectAllMissing(t *testing.T) {
	cfg := testCfg(t)
	if err := os.MkdirAll(filepath.Join(cfg.QCRoot(), "sub-09"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := NewCompiler(cfg, nil).CompileSubject("sub-09")
	if err != nil {
		t.Fatalf("CompileSubject: %v", err)
	}
	if res.OverallStatus != models.StatusMissing {
		t.Errorf("overall = %s, want MISSING", res.OverallStatus)
	}
	if res.FileExistence.Available {
		t.Error("file existence section should be unavailable")
	}
	if res.FileExistence.Reason == "" {
		t.Error("unavailable section should carry a reason")
	}
}

func TestCompileSubjectThumbnails(t *testing.T) {
	cfg := testCfg(t)
	writeSubjectFixture(t, cfg, "sub-01", "2024-01-05", 0.95, models.StatusPass)

	c := NewCompiler(cfg, visualization.NewRenderer(64))
	if _, err := c.CompileSubject("sub-01"); err != nil {
		t.Fatal(err)
	}

	thumbsDir := filepath.Join(cfg.QCRoot(), "sub-01", "thumbnails")
	for _, name := range []string{"fa_axial.png", "fa_sagittal.png", "fa_coronal.png"} {
		if _, err := os.Stat(filepath.Join(thumbsDir, name)); err != nil {
			t.Errorf("missing thumbnail %s: %v", name, err)
		}
	}

	html, err := os.ReadFile(filepath.Join(cfg.QCRoot(), "sub-01", "sub-01_report.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(html, []byte("fa_axial.png")) {
		t.Error("report HTML does not reference thumbnails")
	}
}

func TestCompileCohort(t *testing.T) {
	cfg := testCfg(t)
	writeSubjectFixture(t, cfg, "sub-01", "2024-01-05", 0.75, models.StatusWarning)
	writeSubjectFixture(t, cfg, "sub-02", "", 0.95, models.StatusPass)
	if err := os.MkdirAll(filepath.Join(cfg.QCRoot(), "sub-03"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := NewCompiler(cfg, nil)
	for _, s := range []string{"sub-01", "sub-02"} {
		if _, err := c.CompileSubject(s); err != nil {
			t.Fatal(err)
		}
	}

	cohort, err := c.CompileCohort()
	if err != nil {
		t.Fatalf("CompileCohort: %v", err)
	}
	if cohort.Total != 3 {
		t.Fatalf("total = %d, want 3", cohort.Total)
	}
	if cohort.Pass != 1 || cohort.Warning != 1 || cohort.Missing != 1 || cohort.Fail != 0 {
		t.Errorf("counts = pass %d warning %d fail %d missing %d",
			cohort.Pass, cohort.Warning, cohort.Fail, cohort.Missing)
	}
	if !cohort.HasDice {
		t.Fatal("expected rigid dice statistics")
	}
	if math.Abs(cohort.MeanRigidDice-0.85) > 1e-12 {
		t.Errorf("mean rigid dice = %v, want 0.85", cohort.MeanRigidDice)
	}
	if cohort.Worst() != models.StatusMissing {
		t.Errorf("worst = %s, want MISSING", cohort.Worst())
	}

	f, err := os.Open(filepath.Join(cfg.QCRoot(), "all_subjects_summary.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("cohort rows = %d, want header plus 3 subjects", len(rows))
	}
	if rows[3][0] != "sub-03" || rows[3][2] != "MISSING" {
		t.Errorf("missing subject row = %v", rows[3])
	}

	if _, err := os.Stat(filepath.Join(cfg.QCRoot(), "DTI_QC_Summary.html")); err != nil {
		t.Errorf("missing cohort HTML: %v", err)
	}

	// The guide is written once and left alone on later runs.
	guidePath := filepath.Join(cfg.QCRoot(), "documentation", "DTI_QC_Guide.md")
	if err := os.WriteFile(guidePath, []byte("edited by hand\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CompileCohort(); err != nil {
		t.Fatal(err)
	}
	guide, err := os.ReadFile(guidePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(guide) != "edited by hand\n" {
		t.Error("existing guide must not be overwritten")
	}

	// Row for a compiled subject links to its report page.
	var sub01 *CohortRow
	for i := range cohort.Rows {
		if cohort.Rows[i].Subject == "sub-01" {
			sub01 = &cohort.Rows[i]
		}
	}
	if sub01 == nil || !sub01.HasReport {
		t.Error("sub-01 row should link to its report")
	}
}

func TestCompileCohortEmpty(t *testing.T) {
	cfg := testCfg(t)

	cohort, err := NewCompiler(cfg, nil).CompileCohort()
	if err != nil {
		t.Fatalf("CompileCohort: %v", err)
	}
	if cohort.Total != 0 {
		t.Errorf("total = %d, want 0", cohort.Total)
	}
	if cohort.Worst() != models.StatusPass {
		t.Errorf("worst = %s, want PASS for empty cohort", cohort.Worst())
	}

	data, err := os.ReadFile(filepath.Join(cfg.QCRoot(), "all_subjects_summary.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := bytes.Count(data, []byte("\n")); lines != 1 {
		t.Errorf("empty cohort CSV has %d lines, want header only", lines)
	}
	if _, err := os.Stat(filepath.Join(cfg.QCRoot(), "DTI_QC_Summary.html")); err != nil {
		t.Errorf("missing cohort HTML: %v", err)
	}
}
