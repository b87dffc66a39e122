package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/redclawsec/redclaw/api/schemas"
	"github.com/redclawsec/redclaw/internal/analyzer"
	"github.com/redclawsec/redclaw/internal/engagement"
	"github.com/redclawsec/redclaw/internal/phase"
)

func TestRenderFullResult(t *testing.T) {
	start := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	res := &engagement.Result{
		Target:     "10.10.10.5",
		Objective:  "capture the flags",
		Outcome:    engagement.OutcomeCompleted,
		FinalPhase: phase.Completed,
		Iterations: 7,
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Minute),
		Discoveries: analyzer.DiscoverySet{
			Ports:    []schemas.Port{{Number: 22, Protocol: "tcp"}},
			Services: []schemas.Service{{Port: 22, Protocol: "tcp", Name: "ssh", Version: "OpenSSH 8.9"}},
			Vulnerabilities: []schemas.Vulnerability{
				{ID: "CVE-2021-41773", Severity: "high", Description: "path traversal"},
			},
			Credentials: []schemas.Credential{{Host: "10.10.10.5", User: "root"}},
			Flags:       []string{"flag{one}"},
		},
		PhaseHistory: []phase.Transition{
			{From: phase.Idle, To: phase.Reconnaissance, Reason: "engagement started", Timestamp: start},
		},
		ToolHistory: []schemas.ToolCallRecord{
			{Tool: "nmap_scan", Success: true},
			{Tool: "curl_request", Success: false},
		},
	}

	out := Render(res)
	assert.True(t, strings.HasPrefix(out, "# Engagement Report: 10.10.10.5"))
	assert.Contains(t, out, "**Outcome:** completed")
	assert.Contains(t, out, "| 22 | tcp |")
	assert.Contains(t, out, "| 22/tcp | ssh | OpenSSH 8.9 |")
	assert.Contains(t, out, "**CVE-2021-41773** (high): path traversal")
	assert.Contains(t, out, "`root@10.10.10.5`")
	assert.Contains(t, out, "`flag{one}`")
	assert.Contains(t, out, "idle -> reconnaissance (engagement started)")
	assert.Contains(t, out, "`curl_request` [failed]")
	assert.Contains(t, out, "**Duration:** 3m0s")
}

func TestRenderEmptyResult(t *testing.T) {
	out := Render(&engagement.Result{
		Target:     "10.10.10.5",
		Outcome:    engagement.OutcomeFailed,
		FinalPhase: phase.Error,
		Err:        "iteration budget exhausted",
	})
	assert.Contains(t, out, "None captured.")
	assert.Contains(t, out, "None found.")
	assert.Contains(t, out, "**Error:** iteration budget exhausted")
	assert.Contains(t, out, "No phase transitions recorded.")
	assert.NotContains(t, out, "## Executive Summary")
}

func TestRenderExecutiveSummary(t *testing.T) {
	out := Render(&engagement.Result{
		Target:  "10.10.10.5",
		Outcome: engagement.OutcomeCompleted,
		Summary: "The host exposed SSH and an outdated web server.",
	})
	assert.Contains(t, out, "## Executive Summary\n\nThe host exposed SSH and an outdated web server.")
}
