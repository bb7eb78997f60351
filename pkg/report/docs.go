package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// writeSubjectREADME drops a README.md next to the subject's reports
// describing what each generated file is and the overall status.
func writeSubjectREADME(qcDir string, r *Result) error {
	content := fmt.Sprintf(`# DTI Quality Control Results
## Subject: %s

### Files in this directory:
- **%s_report.html** - Main QC report
- **%s_qc_results.json** - Detailed results
- **%s_qc_summary.csv** - Flattened summary row
- **file_existence.csv / mni_registration_qc.csv** - Raw QC tables
  (per session subdirectory when the subject has multiple sessions)
- **thumbnails/** - FA map slice thumbnails, when rendered

### Overall QC Status: %s

Generated: %s
`, r.Subject, r.Subject, r.Subject, r.Subject, r.OverallStatus,
		time.Now().Format("2006-01-02 15:04:05"))

	return os.WriteFile(filepath.Join(qcDir, "README.md"), []byte(content), 0o644)
}

const cohortGuide = `# DTI Quality Control Guide

## Overview
This directory contains the aggregated quality control results for a DTI
preprocessing run:

- **<subject>/**: individual subject results (HTML report, JSON, CSV tables)
- **all_subjects_summary.csv**: one summary row per subject
- **DTI_QC_Summary.html**: cohort index with overlap statistics
- **documentation/**: this guide

## Checks Performed
1. **File existence** - registered volumes, transforms, skull-strip QC
   image and tensor maps produced by the upstream pipeline
2. **MNI registration** - Dice overlap of the rigid and affine registered
   b0 volumes against the template
3. **Within-session registration** - scan-to-scan b0 overlap, multi-scan
   sessions only

## Status Levels
- **PASS**: metric cleared the pass threshold
- **WARNING**: metric between the warning and pass thresholds, or the
  overlap was undefined
- **FAIL**: metric below the warning threshold, or an unusable artifact
- **MISSING**: an expected input file was absent
- **SKIPPED**: the check does not apply (e.g. single-scan sessions)

## Usage
1. Open DTI_QC_Summary.html and scan the status column
2. Follow a subject's link for its detailed report and thumbnails
3. Use all_subjects_summary.csv for population statistics
`

// writeCohortGuide writes the documentation guide once; an existing
// guide is left untouched.
func writeCohortGuide(qcRoot string) error {
	dir := filepath.Join(qcRoot, "documentation")
	path := filepath.Join(dir, "DTI_QC_Guide.md")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(cohortGuide), 0o644)
}
