package report

import (
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dtiqc/internal/models"
)

var templateFuncs = template.FuncMap{
	"statusClass": func(s models.Status) string {
		if s == "" {
			return "missing"
		}
		return strings.ToLower(string(s))
	},
	"metric": func(m *float64) string {
		if m == nil {
			return "N/A"
		}
		return strconv.FormatFloat(*m, 'f', 4, 64)
	},
	"fixed": func(v float64, prec int) string {
		return strconv.FormatFloat(v, 'f', prec, 64)
	},
}

const pageCSS = `
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { border-bottom: 2px solid #444; padding-bottom: 0.2em; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #bbb; padding: 0.35em 0.8em; text-align: left; }
th { background: #eee; }
.pass { background: #c8e6c9; }
.warning { background: #fff3c4; }
.fail { background: #ffcdd2; }
.missing { background: #e0e0e0; }
.skipped { background: #f5f5f5; color: #777; }
.thumbs img { margin: 0.5em; border: 1px solid #ccc; max-width: 300px; }
.statbox { background: #f0f4f8; padding: 1em; border-radius: 4px; display: inline-block; }
`

const subjectTemplateText = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>DTI QC - {{.Result.Subject}}</title>
<style>` + pageCSS + `</style>
</head>
<body>
<h1>DTI Quality Control Report</h1>
<p><a href="../DTI_QC_Summary.html">&larr; Cohort summary</a></p>
<h2>Subject: {{.Result.Subject}}</h2>
<p>Generated: {{.Generated}}</p>
{{if .Result.Sessions}}<p>Sessions: {{range $i, $s := .Result.Sessions}}{{if $i}}, {{end}}{{$s}}{{end}}</p>{{end}}
<p>Overall status: <span class="{{statusClass .Result.OverallStatus}}">{{.Result.OverallStatus}}</span></p>

{{range .Sections}}
<h3>{{.Title}}</h3>
{{if .Section.Available}}
<table>
<tr><th>Session</th><th>Check</th><th>Status</th><th>Metric</th><th>Threshold</th></tr>
{{range .Section.Records}}
<tr class="{{statusClass .Status}}">
<td>{{.Session}}</td><td>{{.Check}}</td><td>{{.Status}}</td><td>{{metric .Metric}}</td><td>{{.Threshold}}</td>
</tr>
{{end}}
</table>
{{else}}
<p class="{{statusClass .Section.Status}}">{{if .Section.Reason}}{{.Section.Reason}}{{else}}not available{{end}}</p>
{{end}}
{{end}}

{{if .Result.BrainVolumes}}
<h3>Brain Volumes</h3>
<table>
<tr><th>Scan</th><th>Volume (mL)</th></tr>
{{range .Result.BrainVolumes}}<tr><td>{{.Scan}}</td><td>{{fixed .VolumeML 2}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Result.MapStatistics}}
<h3>Scalar Map Statistics</h3>
<table>
<tr><th>Map</th><th>Mean</th><th>Std</th><th>Min</th><th>Max</th></tr>
{{range $name, $s := .Result.MapStatistics}}<tr><td>{{$name}}</td><td>{{fixed $s.Mean 6}}</td><td>{{fixed $s.Std 6}}</td><td>{{fixed $s.Min 6}}</td><td>{{fixed $s.Max 6}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Thumbnails}}
<h3>FA Map</h3>
<div class="thumbs">
{{range .Thumbnails}}<img src="{{.}}" alt="{{.}}">
{{end}}</div>
{{end}}
</body>
</html>
`

var subjectTemplate = template.Must(
	template.New("subject").Funcs(templateFuncs).Parse(subjectTemplateText))

type sectionView struct {
	Title   string
	Section *Section
}

type subjectPage struct {
	Result     *Result
	Generated  string
	Sections   []sectionView
	Thumbnails []string
}

// writeSubjectHTML renders the per-subject report page next to the
// subject's QC tables.
func (c *Compiler) writeSubjectHTML(qcDir string, r *Result, thumbnails []string) error {
	page := subjectPage{
		Result:     r,
		Generated:  time.Now().Format("2006-01-02 15:04:05"),
		Thumbnails: thumbnails,
	}
	if r.FileExistence != nil {
		page.Sections = append(page.Sections, sectionView{"File Existence", r.FileExistence})
	}
	if r.WithinRegistration != nil {
		page.Sections = append(page.Sections, sectionView{"Within-Session Registration", r.WithinRegistration})
	}
	if r.MNIRegistration != nil {
		page.Sections = append(page.Sections, sectionView{"MNI Registration", r.MNIRegistration})
	}

	f, err := os.Create(filepath.Join(qcDir, r.Subject+"_report.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	return subjectTemplate.Execute(f, page)
}

const cohortTemplateText = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>DTI QC Summary</title>
<style>` + pageCSS + `</style>
</head>
<body>
<h1>DTI Quality Control Summary</h1>
<p>Generated: {{.Generated}}</p>
<div class="statbox">
<p>Subjects: {{.Cohort.Total}}</p>
<p>Pass: {{.Cohort.Pass}} &nbsp; Warning: {{.Cohort.Warning}} &nbsp; Fail: {{.Cohort.Fail}} &nbsp; Missing: {{.Cohort.Missing}}</p>
{{if .Cohort.HasDice}}<p>Rigid Dice: mean {{fixed .Cohort.MeanRigidDice 4}}, median {{fixed .Cohort.MedianRigidDice 4}}</p>{{end}}
</div>
<table>
<tr><th>Subject</th><th>Sessions</th><th>Overall</th><th>Rigid Dice</th><th>Affine Dice</th><th>Brain Volume (mL)</th><th>Report</th></tr>
{{range .Cohort.Rows}}
<tr class="{{statusClass .Overall}}">
<td>{{.Subject}}</td><td>{{.Sessions}}</td><td>{{.Overall}}</td><td>{{or .RigidDice "N/A"}}</td><td>{{or .AffineDice "N/A"}}</td><td>{{or .BrainVolumeML "N/A"}}</td>
<td>{{if .HasReport}}<a href="{{.ReportPath}}">view</a>{{else}}&mdash;{{end}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`

var cohortTemplate = template.Must(
	template.New("cohort").Funcs(templateFuncs).Parse(cohortTemplateText))

type cohortPage struct {
	Cohort    *Cohort
	Generated string
}

func writeCohortHTML(path string, c *Cohort) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return cohortTemplate.Execute(f, cohortPage{Cohort: c, Generated: time.Now().Format("2006-01-02 15:04:05")})
}
