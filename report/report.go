// Package report renders an HTML summary of the calibration archive and can
// serve it, together with the cached figures, on a local address.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/yosssi/gohtml"
)

// Filename is the file Generate writes into the report directory.
const Filename = "report.html"

// Repository is the read side of the archive the report draws from.
type Repository interface {
	GetRunSummaries() ([]*domain.RunSummary, error)
	GetStars(runID uuid.UUID) ([]*domain.MatchedStar, error)
	GetCutouts() ([]*domain.Cutout, error)
	GetFetchSummary() ([]*domain.FetchSummary, error)
	GetLogs() ([]*domain.Log, error)
	domain.StatsRepository
}

// Data is everything the report page renders.
type Data struct {
	GeneratedAt time.Time
	Overview    Overview
	Runs        []*Run
	Cutouts     []*domain.Cutout
	Fetches     []*domain.FetchSummary
	Logs        []*domain.Log
}

// Overview holds the archive totals shown at the top of the page.
type Overview struct {
	Runs          int
	Completed     int
	Campaigns     int
	Cutouts       int
	CacheBySurvey []SurveyBytes
}

// SurveyBytes is one row of the cutout cache size breakdown.
type SurveyBytes struct {
	Survey string
	Bytes  int64
}

// Run pairs a run summary with its star table.
type Run struct {
	*domain.RunSummary
	Stars []*domain.MatchedStar
}

// HasFit reports whether the run converged and carries a zero point.
func (run *Run) HasFit() bool {
	return run.Status == domain.RunComplete
}

// Generate renders the archive report and writes it to path.
func Generate(repo Repository, path string) error {
	data, err := collect(repo)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return fmt.Errorf("rendering report : %w", err)
	}

	if err := os.WriteFile(path, gohtml.FormatBytes(buf.Bytes()), 0o644); err != nil {
		return fmt.Errorf("writing report : %w", err)
	}

	return nil
}

// collect reads everything the page needs out of the archive.
func collect(repo Repository) (*Data, error) {
	data := &Data{GeneratedAt: time.Now()}

	var err error
	if data.Overview.Runs, err = repo.CountRuns(); err != nil {
		return nil, fmt.Errorf("counting runs : %w", err)
	}
	if data.Overview.Completed, err = repo.CountCompleted(); err != nil {
		return nil, fmt.Errorf("counting completed runs : %w", err)
	}
	if data.Overview.Campaigns, err = repo.CountCampaigns(); err != nil {
		return nil, fmt.Errorf("counting campaigns : %w", err)
	}
	if data.Overview.Cutouts, err = repo.CountCutouts(); err != nil {
		return nil, fmt.Errorf("counting cutouts : %w", err)
	}

	bySurvey, err := repo.BytesBySurvey()
	if err != nil {
		return nil, fmt.Errorf("sizing cutout cache : %w", err)
	}
	for survey, size := range bySurvey {
		data.Overview.CacheBySurvey = append(data.Overview.CacheBySurvey, SurveyBytes{Survey: survey, Bytes: size})
	}
	sort.Slice(data.Overview.CacheBySurvey, func(i, j int) bool {
		return data.Overview.CacheBySurvey[i].Survey < data.Overview.CacheBySurvey[j].Survey
	})

	summaries, err := repo.GetRunSummaries()
	if err != nil {
		return nil, fmt.Errorf("loading run summaries : %w", err)
	}
	for _, summary := range summaries {
		run := &Run{RunSummary: summary}
		if run.HasFit() {
			if run.Stars, err = repo.GetStars(summary.ID); err != nil {
				return nil, fmt.Errorf("loading stars for %s : %w", summary.ID, err)
			}
		}
		data.Runs = append(data.Runs, run)
	}

	if data.Cutouts, err = repo.GetCutouts(); err != nil {
		return nil, fmt.Errorf("loading cutouts : %w", err)
	}
	if data.Fetches, err = repo.GetFetchSummary(); err != nil {
		return nil, fmt.Errorf("loading fetch log : %w", err)
	}
	if data.Logs, err = repo.GetLogs(); err != nil {
		return nil, fmt.Errorf("loading logs : %w", err)
	}

	return data, nil
}

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"bytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
	"short": func(id uuid.UUID) string { return id.String()[:8] },
	"mag":   func(v float64) string { return fmt.Sprintf("%.3f", v) },
	"deg":   func(v float64) string { return fmt.Sprintf("%.5f", v) },
	"sum": func(checksum string) string {
		if len(checksum) > 12 {
			return checksum[:12]
		}
		return checksum
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"took": func(fetch *domain.FetchSummary) string {
		if fetch.RequestedAt.IsZero() || fetch.RespondedAt.IsZero() {
			return ""
		}
		return fetch.RespondedAt.Sub(fetch.RequestedAt).Round(time.Millisecond).String()
	},
}).Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Azimuth archive</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 72rem; color: #1d2129; }
h1 { margin-bottom: 0; }
h2 { margin-top: 2.5rem; border-bottom: 1px solid #d4d8dd; padding-bottom: 0.3rem; }
p.sub { color: #6b7280; margin-top: 0.2rem; }
table { border-collapse: collapse; width: 100%; font-size: 0.85rem; }
th { text-align: left; border-bottom: 2px solid #d4d8dd; padding: 0.3rem 0.6rem; }
td { border-bottom: 1px solid #e8eaed; padding: 0.3rem 0.6rem; white-space: nowrap; }
td.wide { white-space: normal; word-break: break-all; }
tr.failed td { color: #b42318; }
span.level-ERROR, span.level-FATAL { color: #b42318; font-weight: 600; }
span.level-WARN { color: #b54708; }
details { margin: 0.6rem 0; }
details summary { cursor: pointer; font-weight: 600; }
ul.overview { list-style: none; padding: 0; display: flex; gap: 2.5rem; }
ul.overview b { display: block; font-size: 1.6rem; }
</style>
</head>
<body>
<h1>Azimuth archive</h1>
<p class="sub">generated {{when .GeneratedAt}}</p>

<h2>Overview</h2>
<ul class="overview">
<li><b>{{.Overview.Runs}}</b> runs</li>
<li><b>{{.Overview.Completed}}</b> completed</li>
<li><b>{{.Overview.Campaigns}}</b> campaigns</li>
<li><b>{{.Overview.Cutouts}}</b> cutouts</li>
</ul>
{{if .Overview.CacheBySurvey}}
<table>
<tr><th>Survey</th><th>Cache size</th></tr>
{{range .Overview.CacheBySurvey}}<tr><td>{{.Survey}}</td><td>{{bytes .Bytes}}</td></tr>
{{end}}</table>
{{end}}

<h2>Calibration runs</h2>
{{if .Runs}}
<table>
<tr><th>Run</th><th>Image</th><th>Inst</th><th>Filter</th><th>Status</th><th>Zero point</th><th>Stars</th><th>Created</th><th>Finished</th></tr>
{{range .Runs}}<tr class="{{.Status}}"><td>{{short .ID}}</td><td class="wide">{{.Image}}</td><td>{{.Instrument}}</td><td>{{.Filter}}</td><td>{{.Status}}</td><td>{{if .HasFit}}{{mag .ZP}} &plusmn; {{mag .ZPErr}}{{end}}</td><td>{{if .HasFit}}{{.FitCount}}{{end}}</td><td>{{when .CreatedAt}}</td><td>{{when .FinishedAt}}</td></tr>
{{end}}</table>

{{range .Runs}}{{if .Stars}}
<details>
<summary>{{short .ID}} &middot; {{.Image}} &middot; {{len .Stars}} matched stars</summary>
<table>
<tr><th>RA</th><th>Dec</th><th>x</th><th>y</th><th>Sep &quot;</th><th>Ref</th><th>Inst</th><th>Colour</th><th>Residual</th><th>Kept</th></tr>
{{range .Stars}}<tr><td>{{deg .RA}}</td><td>{{deg .Dec}}</td><td>{{printf "%.1f" .X}}</td><td>{{printf "%.1f" .Y}}</td><td>{{printf "%.2f" .Sep}}</td><td>{{mag .RefMag}}</td><td>{{mag .InstMag}}</td><td>{{mag .Color}}</td><td>{{mag .Residual}}</td><td>{{if .Kept}}yes{{else}}clipped{{end}}</td></tr>
{{end}}</table>
</details>
{{end}}{{end}}
{{else}}<p>No calibration runs recorded yet.</p>{{end}}

<h2>Cutout cache</h2>
{{if .Cutouts}}
<table>
<tr><th>Galaxy</th><th>Survey</th><th>Band</th><th>Size px</th><th>&quot;/px</th><th>On disk</th><th>SHA-256</th><th>Fetched</th></tr>
{{range .Cutouts}}<tr><td>{{.Galaxy}}</td><td>{{.Survey}}</td><td>{{.Band}}</td><td>{{.SizePix}}</td><td>{{printf "%.2f" .PixScale}}</td><td>{{bytes .Bytes}}</td><td title="{{.Checksum}}">{{sum .Checksum}}</td><td>{{when .CreatedAt}}</td></tr>
{{end}}</table>
{{else}}<p>No cutouts cached yet.</p>{{end}}

<h2>Fetch log</h2>
{{if .Fetches}}
<table>
<tr><th>Requested</th><th>Survey</th><th>Method</th><th>Host</th><th>Path</th><th>Status</th><th>Length</th><th>Took</th></tr>
{{range .Fetches}}<tr><td>{{when .RequestedAt}}</td><td>{{.Survey}}</td><td>{{.Method}}</td><td>{{.Host}}</td><td class="wide">{{.Path}}</td><td>{{.StatusCode}}</td><td>{{.Length}}</td><td>{{took .}}</td></tr>
{{end}}</table>
{{else}}<p>No survey fetches recorded yet.</p>{{end}}

<h2>Logs</h2>
{{if .Logs}}
<table>
<tr><th>Time</th><th>Level</th><th>Message</th><th>Run</th></tr>
{{range .Logs}}<tr><td>{{when .Timestamp}}</td><td><span class="level-{{.Level}}">{{.Level}}</span></td><td class="wide">{{.Message}}</td><td>{{if .RunID}}{{short .RunID}}{{end}}</td></tr>
{{end}}</table>
{{else}}<p>No log entries recorded yet.</p>{{end}}
</body>
</html>
`
