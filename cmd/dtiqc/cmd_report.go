package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dtiqc/internal/models"
	"dtiqc/pkg/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [subject...]",
	Short: "Compile per-subject JSON, CSV and HTML reports",
	Long: "report reads the QC tables produced by check and writes each\n" +
		"subject's results JSON, flattened summary CSV and HTML report page.\n" +
		"Without arguments every subject under <output>/QC/ is compiled.",
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subjects := args
	if len(subjects) == 0 {
		if subjects, err = qcSubjects(cfg); err != nil {
			return fmt.Errorf("listing subjects: %w", err)
		}
	}
	if len(subjects) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No subjects found.")
		return nil
	}

	compiler := report.NewCompiler(cfg, newRenderer(cfg))
	worst := models.StatusPass
	for _, subject := range subjects {
		res, err := compiler.CompileSubject(subject)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", subject, res.OverallStatus)
		if statusWorse(res.OverallStatus, worst) {
			worst = res.OverallStatus
		}
	}

	exitForStatus(worst)
	return nil
}

// statusWorse reports whether a is more severe than b.
func statusWorse(a, b models.Status) bool {
	rank := func(s models.Status) int {
		switch s {
		case models.StatusWarning:
			return 1
		case models.StatusMissing:
			return 2
		case models.StatusFail:
			return 3
		}
		return 0
	}
	return rank(a) > rank(b)
}
