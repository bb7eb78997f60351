// Package qc runs per-step quality checks over a subject's pipeline
// outputs and aggregates the resulting records into CSV tables.
//
// Every check is a point-in-time inspection of files on disk. Failures
// become data rows, never fatal errors: a subject with half its outputs
// missing still produces a complete set of MISSING records and the
// batch moves on.
package qc

import (
	"os"
	"regexp"
	"sort"
)

// Session directories are date tokens (2024-02-13) or acquisition
// timestamps (2008-07-07_14_10_46.0) depending on the dataset.
var sessionPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(_\d{2}_\d{2}_\d{2}(\.\d+)?)?$`)

// DiscoverSessions lists the session subdirectories of a subject's
// output tree, sorted ascending. A missing or unreadable root yields no
// sessions: such subjects are treated as single-session and their
// checks degrade to MISSING rows downstream.
func DiscoverSessions(subjectRoot string) []string {
	entries, err := os.ReadDir(subjectRoot)
	if err != nil {
		return nil
	}

	var sessions []string
	for _, e := range entries {
		if e.IsDir() && sessionPattern.MatchString(e.Name()) {
			sessions = append(sessions, e.Name())
		}
	}
	sort.Strings(sessions)
	return sessions
}
