package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dtiqc/pkg/qc"
)

var checkCmd = &cobra.Command{
	Use:   "check [subject...]",
	Short: "Run QC checks and write per-subject QC tables",
	Long: "check walks each subject's registration output, scores Dice overlap\n" +
		"against the MNI template, verifies expected artifacts, and writes the\n" +
		"QC tables under <output>/QC/<subject>/. Without arguments every\n" +
		"subject found under the MNI registration step is checked.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
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
	if len(subjects) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No subjects found.")
		return nil
	}

	if err := agg.Run(subjects); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Checked %d subject(s).\n", len(subjects))
	return nil
}
