package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	coreapp "upgradeimpact/internal/core/app"
	"upgradeimpact/internal/core/config"
	"upgradeimpact/internal/data/history"
	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/risk"
	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/engine/usage"
	"upgradeimpact/internal/shared/util"
	"upgradeimpact/internal/ui/report"
)

const maxListedNodes = 50

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	return tbl
}

func severityColor(s risk.Severity) *color.Color {
	switch s {
	case risk.Critical:
		return color.New(color.FgRed, color.Bold)
	case risk.High:
		return color.New(color.FgRed)
	case risk.Medium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func changeColor(t apidiff.ChangeType) *color.Color {
	switch t {
	case apidiff.Removed:
		return color.New(color.FgRed)
	case apidiff.Modified:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

type analyzeOutput struct {
	Reports []coreapp.Report `json:"reports"`
	Summary coreapp.Summary  `json:"summary"`
	Blocked bool             `json:"ci_blocked"`
}

func renderReports(w io.Writer, out analyzeOutput) {
	if len(out.Reports) == 0 {
		fmt.Fprintln(w, "No dependencies need an upgrade.")
		return
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Package", "Current", "Target", "Score", "Severity", "Semver", "Usage", "Changelog", "Effort"})
	for _, r := range out.Reports {
		tbl.AppendRow(table.Row{
			r.Dependency.Name,
			r.Dependency.Current,
			r.Dependency.Target,
			fmt.Sprintf("%.1f", r.Score.Total),
			severityColor(r.Score.Severity).Sprint(string(r.Score.Severity)),
			fmt.Sprintf("%.0f", r.Score.Factor(risk.FactorSemver)),
			fmt.Sprintf("%.0f", r.Score.Factor(risk.FactorUsage)),
			fmt.Sprintf("%.0f", r.Score.Factor(risk.FactorChangelog)),
			string(r.Recommendation.Effort),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", out.Summary.Total), "", "", "",
		fmt.Sprintf("%d critical, %d high", out.Summary.Critical, out.Summary.High)})
	tbl.Render()

	for _, r := range out.Reports {
		renderReportDetail(w, r)
	}
	if out.Blocked {
		color.New(color.FgRed, color.Bold).Fprintln(w, "\nCI policy blocks this upgrade set.")
	}
}

func renderReportDetail(w io.Writer, r coreapp.Report) {
	if len(r.BreakingChanges) == 0 && len(r.Warnings) == 0 && len(r.MigrationTips) == 0 && len(r.PolicyViolations) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s %s -> %s\n", color.New(color.Bold).Sprint(r.Dependency.Name), r.Dependency.Current, r.Dependency.Target)
	if r.Dependency.Via != "" {
		fmt.Fprintf(w, "  Required by %s\n", r.Dependency.Via)
	}
	if len(r.Recommendation.Path) > 0 {
		fmt.Fprintf(w, "  Path: %s\n", strings.Join(r.Recommendation.Path, " -> "))
	}
	if r.Recommendation.Rationale != "" {
		fmt.Fprintf(w, "  %s\n", r.Recommendation.Rationale)
	}
	for _, b := range r.BreakingChanges {
		changeColor(b.Change.ChangeType).Fprintf(w, "  [%s] %s\n", b.Change.ChangeType, b.Change.SymbolName)
		fmt.Fprintf(w, "    %s. %s\n", b.ImpactSummary(), b.Recommendation)
	}
	for _, v := range r.PolicyViolations {
		c := color.New(color.FgYellow)
		if v.Blocking {
			c = color.New(color.FgRed, color.Bold)
		}
		c.Fprintf(w, "  policy %s: %s\n", v.Policy, v.Message)
	}
	for _, warn := range r.Warnings {
		color.New(color.FgYellow).Fprintf(w, "  warning: %s\n", warn)
	}
	for _, tip := range r.MigrationTips {
		color.New(color.FgCyan).Fprintf(w, "  - %s\n", tip)
	}
}

type usageOutput struct {
	Package string              `json:"package"`
	Summary usage.Summary       `json:"summary"`
	Symbols []string            `json:"symbols"`
	Nodes   []symbols.UsageNode `json:"nodes"`
}

func renderUsage(w io.Writer, out usageOutput) {
	if len(out.Nodes) == 0 {
		fmt.Fprintf(w, "No usage of %s found.\n", out.Package)
		return
	}
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Symbol", "File", "Lines", "Calls"})
	for i, n := range out.Nodes {
		if i == maxListedNodes {
			tbl.AppendRow(table.Row{fmt.Sprintf("... %d more", len(out.Nodes)-maxListedNodes)})
			break
		}
		tbl.AppendRow(table.Row{n.SymbolPath, n.FilePath, joinInts(n.LineNumbers), n.CallCount})
	}
	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d symbols", out.Summary.UniqueSymbols),
		fmt.Sprintf("%d files", out.Summary.TotalFiles),
		fmt.Sprintf("%d imports", out.Summary.ImportStatements),
		out.Summary.TotalCalls,
	})
	tbl.Render()
	if out.Summary.SkippedFiles > 0 {
		color.New(color.FgYellow).Fprintf(w, "%d file(s) skipped: parse errors\n", out.Summary.SkippedFiles)
	}
}

type diffOutput struct {
	Package    string           `json:"package"`
	OldVersion string           `json:"old_version"`
	NewVersion string           `json:"new_version"`
	Changes    []apidiff.Change `json:"changes"`
	Coverage   apidiff.Coverage `json:"coverage"`
	Uncovered  []string         `json:"uncovered,omitempty"`
}

func renderDiff(w io.Writer, out diffOutput) {
	if out.Coverage == apidiff.CoverageUnknown {
		color.New(color.FgYellow).Fprintf(w, "API surface of %s %s or %s is unavailable; changes are unknown.\n",
			out.Package, out.OldVersion, out.NewVersion)
		return
	}
	if len(out.Uncovered) > 0 {
		color.New(color.FgYellow).Fprintf(w, "Not compared (package source not found): %s\n", strings.Join(out.Uncovered, ", "))
	}
	if len(out.Changes) == 0 {
		fmt.Fprintf(w, "No API changes between %s %s and %s.\n", out.Package, out.OldVersion, out.NewVersion)
		return
	}
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Symbol", "Change", "Description"})
	for _, c := range out.Changes {
		tbl.AppendRow(table.Row{c.SymbolName, changeColor(c.ChangeType).Sprint(string(c.ChangeType)), c.Description})
	}
	tbl.AppendFooter(table.Row{
		fmt.Sprintf("Total: %d", len(out.Changes)),
		fmt.Sprintf("%d removed", apidiff.Count(out.Changes, apidiff.Removed)),
		fmt.Sprintf("%d modified, %d deprecated",
			apidiff.Count(out.Changes, apidiff.Modified), apidiff.Count(out.Changes, apidiff.Deprecated)),
	})
	tbl.Render()
}

func renderRuns(w io.Writer, pkg string, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded for %s.\n", pkg)
		return
	}
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Time", "Commit", "Current", "Target", "Score", "Severity", "Usages", "Coverage"})
	for _, r := range runs {
		tbl.AppendRow(table.Row{
			r.Timestamp.Local().Format(time.DateTime),
			shortHash(r.CommitHash),
			r.Current,
			r.Target,
			fmt.Sprintf("%.1f", r.Total),
			severityColor(risk.Severity(r.Severity)).Sprint(r.Severity),
			r.UsageCount,
			r.Coverage,
		})
	}
	tbl.Render()
}

func renderTrend(w io.Writer, tr history.TrendReport) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Time", "Target", "Score", "Delta", "Avg", "Usages", "Delta Usages"})
	for _, p := range tr.Points {
		tbl.AppendRow(table.Row{
			p.Timestamp.Local().Format(time.DateTime),
			p.Target,
			fmt.Sprintf("%.1f", p.Total),
			fmt.Sprintf("%+.2f", p.DeltaTotal),
			fmt.Sprintf("%.2f", p.AvgTotal),
			p.UsageCount,
			fmt.Sprintf("%+d", p.DeltaUsage),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d runs", tr.RunCount), "window " + tr.Window})
	tbl.Render()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

const (
	formatTable    = "table"
	formatJSON     = "json"
	formatMarkdown = "markdown"
	formatSARIF    = "sarif"

	injectMarker = "report"
)

var formats = []string{formatTable, formatJSON, formatMarkdown, formatSARIF}

func validFormat(f string) bool {
	for _, known := range formats {
		if f == known {
			return true
		}
	}
	return false
}

// writeAnalyzeOutput renders out in format to stdout, or to path when set.
func writeAnalyzeOutput(stdout io.Writer, cfg *config.Config, format, path string, out analyzeOutput) error {
	var buf bytes.Buffer
	switch format {
	case formatJSON:
		if err := writeJSON(&buf, out); err != nil {
			return err
		}
	case formatMarkdown:
		buf.WriteString(report.GenerateMarkdown(out.Reports))
	case formatSARIF:
		data, err := report.GenerateSARIF(cfg.Paths.ProjectRoot, versionString, out.Reports)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	default:
		if path != "" {
			prev := color.NoColor
			color.NoColor = true
			defer func() { color.NoColor = prev }()
		}
		renderReports(&buf, out)
	}

	if path == "" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	if err := util.WriteFileWithDirs(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Report written to %s\n", path)
	return nil
}
