// Package report renders an engagement result as a markdown document.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/redclawsec/redclaw/internal/engagement"
)

// Render produces the full markdown report for one finished engagement.
func Render(res *engagement.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Engagement Report: %s\n\n", res.Target)
	fmt.Fprintf(&b, "- **Objective:** %s\n", res.Objective)
	fmt.Fprintf(&b, "- **Outcome:** %s\n", res.Outcome)
	fmt.Fprintf(&b, "- **Final phase:** %s\n", res.FinalPhase)
	fmt.Fprintf(&b, "- **Iterations:** %d\n", res.Iterations)
	if !res.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- **Duration:** %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	}
	if res.Err != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", res.Err)
	}
	b.WriteString("\n")

	if res.Summary != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(res.Summary)
		b.WriteString("\n\n")
	}

	d := res.Discoveries

	b.WriteString("## Flags\n\n")
	if len(d.Flags) == 0 {
		b.WriteString("None captured.\n\n")
	} else {
		for _, f := range d.Flags {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Open Ports\n\n")
	if len(d.Ports) == 0 {
		b.WriteString("None found.\n\n")
	} else {
		b.WriteString("| Port | Protocol |\n|------|----------|\n")
		for _, p := range d.Ports {
			fmt.Fprintf(&b, "| %d | %s |\n", p.Number, p.Protocol)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Services\n\n")
	if len(d.Services) == 0 {
		b.WriteString("None identified.\n\n")
	} else {
		b.WriteString("| Port | Service | Version |\n|------|---------|--------|\n")
		for _, s := range d.Services {
			fmt.Fprintf(&b, "| %d/%s | %s | %s |\n", s.Port, s.Protocol, s.Name, s.Version)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Vulnerabilities\n\n")
	if len(d.Vulnerabilities) == 0 {
		b.WriteString("None identified.\n\n")
	} else {
		for _, v := range d.Vulnerabilities {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", v.ID, v.Severity, v.Description)
		}
		b.WriteString("\n")
	}

	if len(d.Credentials) > 0 {
		b.WriteString("## Credentials\n\n")
		for _, c := range d.Credentials {
			fmt.Fprintf(&b, "- `%s@%s`\n", c.User, c.Host)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Phase Timeline\n\n")
	if len(res.PhaseHistory) == 0 {
		b.WriteString("No phase transitions recorded.\n\n")
	} else {
		for _, tr := range res.PhaseHistory {
			fmt.Fprintf(&b, "- %s: %s -> %s (%s)\n",
				tr.Timestamp.Format(time.RFC3339), tr.From, tr.To, tr.Reason)
		}
		b.WriteString("\n")
	}

	if len(res.ToolHistory) > 0 {
		b.WriteString("## Tool Activity\n\n")
		for _, rec := range res.ToolHistory {
			status := "ok"
			if !rec.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "- `%s` [%s]\n", rec.Tool, status)
		}
		b.WriteString("\n")
	}

	return b.String()
}
