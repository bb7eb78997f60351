package models

// Status is the outcome of a single QC check. A check starts in
// StatusPending and makes exactly one transition to a terminal status;
// there is nothing to retry because every check is a point-in-time
// inspection of files on disk.
type Status string

const (
	// StatusPending means the check has not run yet.
	StatusPending Status = "PENDING"

	// StatusPass means the artifact exists and, for metric checks,
	// the metric cleared the pass threshold.
	StatusPass Status = "PASS"

	// StatusWarning means the metric landed between the warning and
	// pass thresholds, or the metric was undefined (empty overlap).
	StatusWarning Status = "WARNING"

	// StatusFail means the metric fell below the warning threshold or
	// an artifact was present but unusable.
	StatusFail Status = "FAIL"

	// StatusMissing means an expected input file was absent. No metric
	// is recorded for missing artifacts.
	StatusMissing Status = "MISSING"

	// StatusSkipped means the check does not apply to this subject,
	// e.g. within-session registration for single-scan sessions.
	StatusSkipped Status = "SKIPPED"
)

// Terminal reports whether s is one of the terminal check outcomes.
func (s Status) Terminal() bool {
	switch s {
	case StatusPass, StatusWarning, StatusFail, StatusMissing, StatusSkipped:
		return true
	}
	return false
}

// Record is one QC result row for a (subject, session, check) triple.
// Records are immutable once created: the path field names the file that
// was inspected at creation time and is never revisited.
type Record struct {
	// Subject is the subject identifier, e.g. "sub-001".
	Subject string `json:"subject_id"`

	// Session is the session token (a date-like directory name) or the
	// empty string for single-session subjects.
	Session string `json:"session,omitempty"`

	// Check is the name of the check, e.g. "mni_rigid_dice".
	Check string `json:"check"`

	// Status is the terminal outcome of the check.
	Status Status `json:"status"`

	// Metric holds the numeric score for metric-based checks. It is nil
	// for existence checks, missing artifacts and undefined metrics.
	Metric *float64 `json:"metric,omitempty"`

	// Threshold is the pass threshold the metric was classified
	// against, zero for pure existence checks.
	Threshold float64 `json:"threshold,omitempty"`

	// Path is the file (or glob pattern when nothing matched) that the
	// check inspected.
	Path string `json:"path"`
}

// MetricValue returns the metric and whether one was recorded.
func (r Record) MetricValue() (float64, bool) {
	if r.Metric == nil {
		return 0, false
	}
	return *r.Metric, true
}

// Float returns a pointer to v, for building records with metrics.
func Float(v float64) *float64 { return &v }
