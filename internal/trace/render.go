package trace

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-cmp/cmp"

	"github.com/fetchkit/browsecore/models"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.Color("63"))
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// ASCII renders a lipgloss-boxed one-screen summary: tier ladder, final
// validation, budget spend, and any anomaly — the "at a glance" view for a
// terminal.
func ASCII(rec *Record) string {
	if rec == nil || rec.Trace == nil {
		return boxStyle.Render("(no trace)")
	}
	dt := rec.Trace
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headingStyle.Render(fmt.Sprintf("%s — %s", rec.ID, rec.Domain)))
	fmt.Fprintf(&b, "%s\n\n", dimStyle.Render(rec.URL))

	for _, a := range dt.TierAttempts {
		status := failStyle.Render("fail")
		if a.Success {
			status = okStyle.Render(" ok ")
		}
		line := fmt.Sprintf("[%s] %-12s %5dms", status, a.Tier, a.DurationMs)
		if !a.Success && a.FailureReason != "" {
			line += dimStyle.Render(" (" + string(a.FailureReason) + ")")
		}
		fmt.Fprintln(&b, line)
	}
	if len(dt.TiersSkipped) > 0 {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render("skipped: "+joinTiers(dt.TiersSkipped)))
	}

	if n := len(dt.Validation); n > 0 {
		v := dt.Validation[n-1]
		fmt.Fprintf(&b, "\nvalidation: passed=%v confidence=%.2f\n", v.Passed, v.Confidence)
	}
	fmt.Fprintf(&b, "budget: spent=%dms tier_timeout=%dms exceeded=%v\n", dt.Budget.SpentMs, dt.Budget.TierTimeoutMs, dt.Budget.LatencyExceeded)
	if dt.Anomaly != nil {
		fmt.Fprintf(&b, "anomaly: %s (confidence %.2f) -> %s\n", dt.Anomaly.Type, dt.Anomaly.Confidence, dt.Anomaly.SuggestedAction)
	}
	if len(dt.Skills.Matched) > 0 {
		fmt.Fprintf(&b, "skills matched: %s applied: %s\n", strings.Join(dt.Skills.Matched, ", "), dt.Skills.Applied)
	}

	return boxStyle.Render(b.String())
}

func joinTiers(tiers []models.RenderTier) string {
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// Detailed renders every section of the trace as plain multi-line text: tier
// attempts (with validation detail), selector attempts, title attempts,
// errors, and the network summary. Meant for piping to a file or pager, not
// a single terminal screen.
func Detailed(rec *Record) string {
	if rec == nil || rec.Trace == nil {
		return "(no trace)"
	}
	dt := rec.Trace
	var b strings.Builder
	fmt.Fprintf(&b, "trace %s\n", rec.ID)
	fmt.Fprintf(&b, "tenant=%s domain=%s url=%s created=%s\n\n", rec.Tenant, rec.Domain, rec.URL, rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))

	fmt.Fprintln(&b, "tier attempts:")
	for i, a := range dt.TierAttempts {
		fmt.Fprintf(&b, "  %d. tier=%s success=%v duration=%dms", i+1, a.Tier, a.Success, a.DurationMs)
		if a.FailureReason != "" {
			fmt.Fprintf(&b, " reason=%s", a.FailureReason)
		}
		fmt.Fprintln(&b)
		if a.ValidationDetails != nil {
			fmt.Fprintf(&b, "     validation: passed=%v confidence=%.2f checks=%v\n", a.ValidationDetails.Passed, a.ValidationDetails.Confidence, a.ValidationDetails.Checks)
			if len(a.ValidationDetails.Errors) > 0 {
				fmt.Fprintf(&b, "     errors: %v\n", a.ValidationDetails.Errors)
			}
		}
	}

	if len(dt.SelectorAttempts) > 0 {
		fmt.Fprintln(&b, "\nselector attempts:")
		for _, s := range dt.SelectorAttempts {
			fmt.Fprintf(&b, "  %-40s content=%-10s success=%v len=%d\n", s.Selector, s.ContentType, s.Success, s.TextLength)
		}
	}

	if len(dt.TitleAttempts) > 0 {
		fmt.Fprintln(&b, "\ntitle attempts:")
		for _, t := range dt.TitleAttempts {
			fmt.Fprintf(&b, "  source=%-12s success=%v confidence=%.2f value=%q\n", t.Source, t.Success, t.Confidence, t.Value)
		}
	}

	fmt.Fprintf(&b, "\nnetwork: total=%d api=%d failed=%d\n",
		dt.NetworkSummary.TotalRequests, dt.NetworkSummary.APIRequests, dt.NetworkSummary.FailedCount)

	if len(dt.Errors) > 0 {
		fmt.Fprintln(&b, "\nerrors:")
		for _, e := range dt.Errors {
			fmt.Fprintf(&b, "  [%s] %s recovery_attempted=%v recovery_succeeded=%v\n", e.Type, e.Message, e.RecoveryAttempted, e.RecoverySucceeded)
		}
	}

	fmt.Fprintf(&b, "\nbudget: tier_timeout=%dms max_latency=%dms spent=%dms exceeded=%v\n",
		dt.Budget.TierTimeoutMs, dt.Budget.MaxLatencyMs, dt.Budget.SpentMs, dt.Budget.LatencyExceeded)

	if dt.Anomaly != nil {
		fmt.Fprintf(&b, "\nanomaly: type=%s confidence=%.2f reasons=%v action=%s wait_ms=%d\n",
			dt.Anomaly.Type, dt.Anomaly.Confidence, dt.Anomaly.Reasons, dt.Anomaly.SuggestedAction, dt.Anomaly.WaitTimeMs)
	}

	return b.String()
}

// JSON renders the raw persisted Record as indented JSON.
func JSON(rec *Record) (string, error) {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>trace {{.ID}}</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem; color: #222; }
h1 { font-size: 1.2rem; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
td, th { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
.ok { color: #1a7f37; } .fail { color: #cf222e; }
.dim { color: #666; }
</style></head>
<body>
<h1>{{.ID}} &mdash; {{.Domain}}</h1>
<p class="dim">{{.URL}}</p>
<table>
<tr><th>Tier</th><th>Success</th><th>Duration (ms)</th><th>Failure reason</th></tr>
{{range .Trace.TierAttempts}}
<tr><td>{{.Tier}}</td><td class="{{if .Success}}ok{{else}}fail{{end}}">{{.Success}}</td><td>{{.DurationMs}}</td><td>{{.FailureReason}}</td></tr>
{{end}}
</table>
<p>Budget: spent {{.Trace.Budget.SpentMs}}ms / tier timeout {{.Trace.Budget.TierTimeoutMs}}ms (exceeded: {{.Trace.Budget.LatencyExceeded}})</p>
{{if .Trace.Anomaly}}<p>Anomaly: {{.Trace.Anomaly.Type}} (confidence {{.Trace.Anomaly.Confidence}}) &rarr; {{.Trace.Anomaly.SuggestedAction}}</p>{{end}}
</body></html>
`

var htmlTmpl = template.Must(template.New("trace").Parse(htmlTemplate))

// HTML renders rec as a standalone HTML document.
func HTML(rec *Record) (string, error) {
	var b strings.Builder
	if err := htmlTmpl.Execute(&b, rec); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Compare diffs two decision traces field-by-field using go-cmp, for the
// spec's compare(trace_a, trace_b) operation. Returns an empty string when
// the traces are equal.
func Compare(a, b *Record) string {
	if a == nil || b == nil {
		return cmp.Diff(a, b)
	}
	return cmp.Diff(a.Trace, b.Trace)
}
