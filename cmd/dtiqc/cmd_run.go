package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dtiqc/pkg/qc"
	"dtiqc/pkg/report"
)

var runCmd = &cobra.Command{
	Use:   "run [subject...]",
	Short: "Run the full pipeline: check, report, cohort",
	Long: "run performs the complete QC pass: checks every subject, compiles\n" +
		"each per-subject report, and rebuilds the cohort summary. The exit\n" +
		"code reflects the worst subject status: 0 pass, 2 warning, 1 fail\n" +
		"or missing.",
	RunE: runAll,
}

func runAll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	agg := qc.NewAggregator(cfg)
	subjects := args
	if len(subjects) == 0 {
		if subjects, err = agg.Subjects(); err != nil {
			return fmt.Errorf("listing subjects: %w", err)
		}
	}
	if err := agg.Run(subjects); err != nil {
		return err
	}

	compiler := report.NewCompiler(cfg, newRenderer(cfg))
	for _, subject := range subjects {
		if _, err := compiler.CompileSubject(subject); err != nil {
			return err
		}
	}

	cohort, err := compiler.CompileCohort()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Subjects: %d (pass %d, warning %d, fail %d, missing %d)\n",
		cohort.Total, cohort.Pass, cohort.Warning, cohort.Fail, cohort.Missing)

	exitForStatus(cohort.Worst())
	return nil
}
