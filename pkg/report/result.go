// Package report compiles QC tables and derived statistics into
// per-subject JSON, CSV and HTML reports plus a cohort-level index.
//
// The compiler is a read-only consumer: it never re-runs checks, it
// renders whatever the QC tables on disk say. JSON and CSV outputs are
// deterministic so re-running on unchanged inputs reproduces them byte
// for byte.
package report

import (
	"dtiqc/internal/models"
)

// Section is one QC section of a subject report, built from one table
// file. A section whose table is absent is marked unavailable rather
// than failing the report.
type Section struct {
	// Status is the worst record status in the section, ignoring
	// skipped checks.
	Status models.Status `json:"status,omitempty"`

	// Available reports whether the backing table file existed.
	Available bool `json:"available"`

	// Reason explains an unavailable or skipped section.
	Reason string `json:"reason,omitempty"`

	// Records are the table rows, in table order.
	Records []models.Record `json:"records,omitempty"`
}

// MapStats summarizes a scalar map (FA or MD) over its nonzero voxels.
type MapStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// BrainVolume is one brain volume measurement from the skull stripping
// step's own QC summary.
type BrainVolume struct {
	Scan     string  `json:"scan"`
	VolumeML float64 `json:"brain_volume_ml"`
}

// Result is the full per-subject QC result serialized to
// <subject>_qc_results.json.
type Result struct {
	Subject       string        `json:"subject_id"`
	Sessions      []string      `json:"sessions,omitempty"`
	OverallStatus models.Status `json:"overall_status"`

	FileExistence      *Section `json:"file_existence_qc,omitempty"`
	WithinRegistration *Section `json:"registration_within_qc,omitempty"`
	MNIRegistration    *Section `json:"registration_mni_qc,omitempty"`

	BrainVolumes  []BrainVolume       `json:"brain_volumes,omitempty"`
	MapStatistics map[string]MapStats `json:"map_statistics,omitempty"`
}

// statusRank orders statuses from best to worst for aggregation.
// Missing inputs are worse than a warning but better than a measured
// failure.
func statusRank(s models.Status) int {
	switch s {
	case models.StatusPass:
		return 0
	case models.StatusWarning:
		return 1
	case models.StatusMissing:
		return 2
	case models.StatusFail:
		return 3
	}
	return -1 // SKIPPED and PENDING do not count toward aggregates
}

// worstStatus folds record statuses into a section status. Skipped
// checks are ignored; a section of only skipped checks is SKIPPED.
func worstStatus(records []models.Record) models.Status {
	worst := models.Status("")
	rank := -1
	for _, r := range records {
		if rr := statusRank(r.Status); rr > rank {
			rank = rr
			worst = r.Status
		}
	}
	if rank < 0 {
		if len(records) > 0 {
			return models.StatusSkipped
		}
		return models.StatusMissing
	}
	return worst
}

// Overall computes the subject-level status across all available
// sections. A subject with no available section at all is MISSING.
func (r *Result) Overall() models.Status {
	worst := models.StatusPass
	rank := statusRank(worst)
	seen := false
	for _, sec := range []*Section{r.FileExistence, r.WithinRegistration, r.MNIRegistration} {
		if sec == nil || !sec.Available {
			continue
		}
		seen = true
		if sr := statusRank(sec.Status); sr > rank {
			rank = sr
			worst = sec.Status
		}
	}
	if !seen {
		return models.StatusMissing
	}
	return worst
}

// MetricFor returns the first metric recorded for the named check in
// the section, if any.
func (s *Section) MetricFor(check string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	for _, r := range s.Records {
		if r.Check == check {
			if m, ok := r.MetricValue(); ok {
				return m, true
			}
		}
	}
	return 0, false
}
