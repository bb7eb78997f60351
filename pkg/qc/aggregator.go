package qc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"dtiqc/pkg/config"
)

// Aggregator walks subjects one at a time, runs the per-step checker
// for every discovered session and writes the per-session QC tables.
// Processing is strictly sequential; nothing is shared across subjects.
type Aggregator struct {
	cfg     *config.Config
	checker *Checker
	log     *logrus.Entry
}

// NewAggregator returns an aggregator bound to the given configuration.
func NewAggregator(cfg *config.Config) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		checker: NewChecker(cfg),
		log:     logrus.WithField("component", "aggregator"),
	}
}

// Subjects lists every subject directory under the MNI registration
// root, the step whose outputs the QC tables are keyed on.
func (a *Aggregator) Subjects() ([]string, error) {
	entries, err := os.ReadDir(a.cfg.RegMNIRoot())
	if err != nil {
		return nil, fmt.Errorf("listing subjects under %s: %w", a.cfg.RegMNIRoot(), err)
	}
	var subjects []string
	for _, e := range entries {
		if e.IsDir() {
			subjects = append(subjects, e.Name())
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}

// Run processes the given subjects. A subject that cannot be processed
// is logged and skipped; the batch always continues. The joined error
// reports which subjects had table-writing problems.
func (a *Aggregator) Run(subjects []string) error {
	var errs []error
	for _, subject := range subjects {
		if err := a.runSubject(subject); err != nil {
			a.log.WithField("subject", subject).WithError(err).Error("subject QC incomplete")
			errs = append(errs, fmt.Errorf("subject %s: %w", subject, err))
		}
	}
	return errors.Join(errs...)
}

// runSubject emits the QC tables for every session of one subject.
// Subjects without session subdirectories are treated as single-session
// with tables directly under QC/<subject>/. The within-session table is
// written only for discovered sessions of multi-scan datasets; a
// subject with no session subdirectories never gets one.
func (a *Aggregator) runSubject(subject string) error {
	sessions := DiscoverSessions(filepath.Join(a.cfg.RegMNIRoot(), subject))
	a.log.WithFields(logrus.Fields{"subject": subject, "sessions": len(sessions)}).Info("running subject QC")

	targets := sessions
	if len(targets) == 0 {
		targets = []string{""}
	}

	var errs []error
	for _, session := range targets {
		qcDir := StepDir(a.cfg.QCRoot(), subject, session)

		files := a.checker.CheckFiles(subject, session)
		if err := WriteRecords(filepath.Join(qcDir, FileExistenceCSV), files); err != nil {
			errs = append(errs, err)
		}

		mni := a.checker.CheckMNI(subject, session)
		if err := WriteRecords(filepath.Join(qcDir, MNIRegCSV), mni); err != nil {
			errs = append(errs, err)
		}

		if a.cfg.Session.ScansPerSession > 1 && session != "" {
			within := a.checker.CheckWithin(subject, session)
			if err := WriteRecords(filepath.Join(qcDir, WithinRegCSV), within); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
