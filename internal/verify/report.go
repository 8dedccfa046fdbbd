// Package verify also renders VerifyCommitMessage results as reports,
// in the same handful of output formats pohwverify lets a caller pick.
package verify

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"
)

// ReportFormat specifies the output format for verification reports.
type ReportFormat string

const (
	FormatJSON     ReportFormat = "json"
	FormatText     ReportFormat = "text"
	FormatMarkdown ReportFormat = "markdown"
	FormatHTML     ReportFormat = "html"
)

// VerificationReport is a Result plus the presentation fields a report
// needs that the bare Result doesn't carry (timing, a decoded summary
// of the manifest's own fields).
type VerificationReport struct {
	Verdict     Verdict       `json:"verdict"`
	Valid       bool          `json:"valid"`
	Detail      string        `json:"detail,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
	Duration    time.Duration `json:"duration_ns"`

	CommitTreeHash string  `json:"commit_tree_hash,omitempty"`
	TimestampNs    uint64  `json:"timestamp_ns,omitempty"`
	CNSScore       uint8   `json:"cns_score,omitempty"`
	CreditsCharged float64 `json:"credits_charged,omitempty"`
	CreditsDebited float64 `json:"credits_debited,omitempty"`
	DifficultyBits uint8   `json:"difficulty_bits,omitempty"`
	PubKey         string  `json:"pubkey,omitempty"`
}

// NewReport builds a VerificationReport from a Result. generatedAt and
// duration are passed in rather than measured here, since VerifyCommitMessage
// itself does not time its own execution.
func NewReport(result Result, generatedAt time.Time, duration time.Duration) *VerificationReport {
	r := &VerificationReport{
		Verdict:     result.Verdict,
		Valid:       result.Verdict == Valid,
		Detail:      result.Detail,
		GeneratedAt: generatedAt,
		Duration:    duration,
	}
	if m := result.Manifest; m != nil {
		r.CommitTreeHash = m.CommitTreeHash
		r.TimestampNs = m.TimestampNs
		r.CNSScore = m.CNSScore
		r.CreditsCharged = m.CreditsCharged
		r.CreditsDebited = m.CreditsDebited
		r.DifficultyBits = m.DifficultyBits
		r.PubKey = m.PubKey
	}
	return r
}

// ReportGenerator renders a VerificationReport in one configured format.
type ReportGenerator struct {
	format  ReportFormat
	verbose bool
}

// NewReportGenerator creates a new report generator.
func NewReportGenerator(format ReportFormat) *ReportGenerator {
	return &ReportGenerator{format: format}
}

// WithVerbose enables verbose output (full, untruncated hashes).
func (g *ReportGenerator) WithVerbose(verbose bool) *ReportGenerator {
	g.verbose = verbose
	return g
}

// Generate produces a report in the configured format.
func (g *ReportGenerator) Generate(report *VerificationReport, w io.Writer) error {
	switch g.format {
	case FormatJSON:
		return g.generateJSON(report, w)
	case FormatText:
		return g.generateText(report, w)
	case FormatMarkdown:
		return g.generateMarkdown(report, w)
	case FormatHTML:
		return g.generateHTML(report, w)
	default:
		return fmt.Errorf("verify: unknown report format %q", g.format)
	}
}

func (g *ReportGenerator) generateJSON(report *VerificationReport, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (g *ReportGenerator) generateText(report *VerificationReport, w io.Writer) error {
	fmt.Fprintln(w, "================================================================================")
	fmt.Fprintln(w, "                  PROVENANCE MANIFEST VERIFICATION REPORT")
	fmt.Fprintln(w, "================================================================================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Result:      %s\n", g.resultString(report.Valid))
	fmt.Fprintf(w, "Verdict:     %s\n", report.Verdict)
	if report.Detail != "" {
		fmt.Fprintf(w, "Detail:      %s\n", report.Detail)
	}
	fmt.Fprintf(w, "Duration:    %v\n", report.Duration.Round(time.Microsecond))
	fmt.Fprintln(w)

	if report.CommitTreeHash != "" {
		fmt.Fprintln(w, "--- Manifest ---")
		fmt.Fprintf(w, "Commit Tree:      %s\n", g.truncateHash(report.CommitTreeHash))
		fmt.Fprintf(w, "Timestamp (ns):   %d\n", report.TimestampNs)
		fmt.Fprintf(w, "CNS Score:        %d/100\n", report.CNSScore)
		fmt.Fprintf(w, "Credits Charged:  %.2f\n", report.CreditsCharged)
		fmt.Fprintf(w, "Credits Debited:  %.2f\n", report.CreditsDebited)
		fmt.Fprintf(w, "Difficulty Bits:  %d\n", report.DifficultyBits)
		fmt.Fprintf(w, "Node Public Key:  %s\n", g.truncateHash(report.PubKey))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "================================================================================")
	return nil
}

func (g *ReportGenerator) generateMarkdown(report *VerificationReport, w io.Writer) error {
	tmpl := `# Provenance Manifest Verification Report

| Property | Value |
|----------|-------|
| **Result** | {{.ResultString}} |
| **Verdict** | {{.Verdict}} |
| **Duration** | {{.Duration}} |
{{if .Detail}}| **Detail** | {{.Detail}} |
{{end}}
{{if .CommitTreeHash}}
## Manifest

| Property | Value |
|----------|-------|
| Commit Tree | ` + "`{{.CommitTreeHash}}`" + ` |
| Timestamp (ns) | {{.TimestampNs}} |
| CNS Score | {{.CNSScore}}/100 |
| Credits Charged | {{.CreditsCharged}} |
| Credits Debited | {{.CreditsDebited}} |
| Difficulty Bits | {{.DifficultyBits}} |
| Node Public Key | ` + "`{{.PubKey}}`" + ` |
{{end}}

---
*Report generated at {{.GeneratedAt}}*
`
	t, err := template.New("report").Parse(tmpl)
	if err != nil {
		return err
	}

	view := struct {
		*VerificationReport
		ResultString string
	}{VerificationReport: report, ResultString: g.resultString(report.Valid)}

	return t.Execute(w, view)
}

func (g *ReportGenerator) generateHTML(report *VerificationReport, w io.Writer) error {
	tmpl := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Provenance Manifest Verification Report</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; }
        .result-valid { color: #28a745; }
        .result-invalid { color: #dc3545; }
        .summary { background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0; }
        table { width: 100%; border-collapse: collapse; margin: 15px 0; }
        th, td { padding: 10px; text-align: left; border-bottom: 1px solid #ddd; }
        code { background: #e9ecef; padding: 2px 6px; border-radius: 3px; font-family: 'Courier New', monospace; }
    </style>
</head>
<body>
    <h1>Provenance Manifest Verification Report</h1>
    <div class="summary">
        <h2>Result: <span class="{{if .Valid}}result-valid{{else}}result-invalid{{end}}">{{if .Valid}}VALID{{else}}INVALID{{end}}</span></h2>
        <p><strong>Verdict:</strong> {{.Verdict}}</p>
        <p><strong>Duration:</strong> {{.Duration}}</p>
        {{if .Detail}}<p><strong>Detail:</strong> {{.Detail}}</p>{{end}}
    </div>
    {{if .CommitTreeHash}}
    <h2>Manifest</h2>
    <table>
        <tr><th>Commit Tree</th><td><code>{{.CommitTreeHash}}</code></td></tr>
        <tr><th>Timestamp (ns)</th><td>{{.TimestampNs}}</td></tr>
        <tr><th>CNS Score</th><td>{{.CNSScore}}/100</td></tr>
        <tr><th>Credits Charged</th><td>{{.CreditsCharged}}</td></tr>
        <tr><th>Credits Debited</th><td>{{.CreditsDebited}}</td></tr>
        <tr><th>Difficulty Bits</th><td>{{.DifficultyBits}}</td></tr>
        <tr><th>Node Public Key</th><td><code>{{.PubKey}}</code></td></tr>
    </table>
    {{end}}
    <footer style="margin-top: 30px; padding-top: 15px; border-top: 1px solid #ddd; color: #6c757d;">
        Report generated at {{.GeneratedAt}}
    </footer>
</body>
</html>`

	t, err := template.New("report").Parse(tmpl)
	if err != nil {
		return err
	}
	return t.Execute(w, report)
}

func (g *ReportGenerator) resultString(valid bool) string {
	if valid {
		return "VALID"
	}
	return "INVALID"
}

func (g *ReportGenerator) truncateHash(hash string) string {
	if len(hash) <= 16 || g.verbose {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-8:]
}

// Summary generates a one-line summary of the report.
func (report *VerificationReport) Summary() string {
	if report.Valid {
		return fmt.Sprintf("[VALID] commit %s, cns %d/100", report.CommitTreeHash, report.CNSScore)
	}
	return fmt.Sprintf("[INVALID] %s: %s", report.Verdict, report.Detail)
}
