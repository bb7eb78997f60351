package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dtiqc/pkg/report"
)

var cohortCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Compile the cohort summary table and HTML index",
	Long: "cohort gathers every subject's summary under <output>/QC/ into\n" +
		"all_subjects_summary.csv and DTI_QC_Summary.html. Both are rebuilt\n" +
		"from scratch on each run.",
	RunE: runCohort,
}

func runCohort(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cohort, err := report.NewCompiler(cfg, nil).CompileCohort()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Subjects: %d (pass %d, warning %d, fail %d, missing %d)\n",
		cohort.Total, cohort.Pass, cohort.Warning, cohort.Fail, cohort.Missing)
	if cohort.HasDice {
		fmt.Fprintf(out, "Rigid Dice: mean %.4f, median %.4f\n",
			cohort.MeanRigidDice, cohort.MedianRigidDice)
	}

	exitForStatus(cohort.Worst())
	return nil
}
