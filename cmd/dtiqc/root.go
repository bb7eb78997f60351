package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dtiqc/internal/models"
	"dtiqc/pkg/config"
	"dtiqc/pkg/visualization"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	outputDir  string
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:   "dtiqc",
	Short: "Quality control aggregation for DTI preprocessing output",
	Long: "dtiqc walks the per-step output tree of a DTI preprocessing pipeline,\n" +
		"scores registration overlap, checks expected artifacts, and compiles\n" +
		"per-subject and cohort QC reports.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", "dtiqc.yaml", "Path to YAML configuration file")
	pf.StringVar(&rootFlags.outputDir, "output-dir", "", "Processed output root (overrides config)")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(cohortCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for a command run.
// A missing config file falls back to defaults; an invalid resolved
// configuration is the one fatal startup condition.
func loadConfig() (*config.Config, error) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if rootFlags.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.LoadConfig(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.outputDir != "" {
		cfg.Paths.OutputDir = rootFlags.outputDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRenderer builds the thumbnail renderer when enabled in config.
func newRenderer(cfg *config.Config) *visualization.Renderer {
	if !cfg.Report.Thumbnails {
		return nil
	}
	return visualization.NewRenderer(cfg.Report.ThumbnailWidth)
}

// qcSubjects lists subjects that already have a QC directory.
func qcSubjects(cfg *config.Config) ([]string, error) {
	entries, err := os.ReadDir(cfg.QCRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
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

// exitForStatus maps an aggregate status onto the process exit code:
// 0 for pass, 2 for warnings, 1 for failures or missing data.
func exitForStatus(s models.Status) {
	switch s {
	case models.StatusPass, models.StatusSkipped:
		return
	case models.StatusWarning:
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
