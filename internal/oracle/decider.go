package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
	"github.com/redclawsec/redclaw/internal/llmutil"
)

const systemPrompt = `You are an autonomous penetration tester working a single authorized engagement.
You operate a fixed catalog of actions and nothing else:

- nmap_scan: port scan the target. args: target, scan_type (quick|default|full|stealth|vuln|udp), ports
- gobuster_scan: directory brute force. args: url, wordlist, extensions
- curl_request: HTTP request. args: url (required), method, data, headers
- nikto_scan: web vulnerability scan. args: target, port
- ssh_connect: run a command over SSH. args: host, username (required), password, command
- ftp_connect: list an FTP share. args: host, username, password
- read_file: read a local path or fetch a URL. args: path (required)
- bash_command: arbitrary shell command from the allowed tool set. args: command (required)
- record_flag: record a captured flag. args: flag (required)

Rules:
1. Propose between one and three actions per turn.
2. Never repeat an action whose identical command already ran.
3. When output contains a flag, propose record_flag with the exact value.
4. Stay on the stated target. Never touch other hosts.

Respond with only a JSON object of the form:
{"actions": [{"name": "...", "args": {...}, "rationale": "..."}]}`

// planResponse is what the model is asked to return. Actions is a pointer so
// an explicit empty plan can be told apart from a response without the key.
type planResponse struct {
	Actions *[]schemas.ActionProposal `json:"actions"`
}

// Decider asks the reasoning model for the next actions given the current
// engagement state.
type Decider struct {
	client  schemas.OracleClient
	logger  *zap.Logger
	timeout time.Duration
	tier    schemas.ModelTier
}

// NewDecider wires a decider over any oracle client. A zero timeout disables
// the per-decision deadline.
func NewDecider(client schemas.OracleClient, logger *zap.Logger, timeout time.Duration) *Decider {
	return &Decider{
		client:  client,
		logger:  logger.Named("oracle.decider"),
		timeout: timeout,
		tier:    schemas.TierPowerful,
	}
}

// Decide produces the next action proposals for the snapshot. An explicit
// empty plan is a valid answer, not an error.
func (d *Decider) Decide(ctx context.Context, snap schemas.ContextSnapshot) ([]schemas.ActionProposal, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(snap),
		Tier:         d.tier,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.2,
		},
	}

	raw, err := d.client.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("oracle generation failed: %w", err)
	}

	proposals, err := parseProposals(raw)
	if err != nil {
		d.logger.Warn("Failed to parse oracle plan",
			zap.String("response", truncate(raw, 500)),
			zap.Error(err))
		return nil, err
	}

	d.logger.Debug("Oracle plan received", zap.Int("actions", len(proposals)))
	return proposals, nil
}

// parseProposals accepts the documented envelope, a bare array, or a single
// proposal object. Models drift between the three.
func parseProposals(raw string) ([]schemas.ActionProposal, error) {
	if resp, err := llmutil.ParseJSONResponse[planResponse](raw); err == nil && resp.Actions != nil {
		return validProposals(*resp.Actions), nil
	}
	if arr, err := llmutil.ParseJSONResponse[[]schemas.ActionProposal](raw); err == nil {
		return validProposals(*arr), nil
	}
	if one, err := llmutil.ParseJSONResponse[schemas.ActionProposal](raw); err == nil && one.Name != "" {
		return validProposals([]schemas.ActionProposal{*one}), nil
	}
	return nil, fmt.Errorf("response contained no recognizable action plan")
}

func validProposals(in []schemas.ActionProposal) []schemas.ActionProposal {
	out := in[:0]
	for _, p := range in {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		if p.Args == nil {
			p.Args = map[string]interface{}{}
		}
		out = append(out, p)
	}
	return out
}

func buildUserPrompt(snap schemas.ContextSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\nObjective: %s\n", snap.Target, snap.Objective)
	fmt.Fprintf(&b, "Phase: %s\nIteration: %d of %d\n\n", snap.Phase, snap.Iteration, snap.Budget)

	fmt.Fprintf(&b, "Discoveries so far: %d ports, %d services, %d vulnerabilities, %d credentials, %d flags\n",
		snap.PortCount, snap.ServiceCount, snap.VulnCount, snap.CredCount, snap.FlagCount)
	writeList(&b, "Open ports", snap.Ports)
	writeList(&b, "Services", snap.Services)
	writeList(&b, "Vulnerabilities", snap.Vulns)
	writeList(&b, "Flags captured", snap.Flags)

	if len(snap.RecentTools) > 0 {
		b.WriteString("\nRecent tool runs:\n")
		for _, rec := range snap.RecentTools {
			status := "ok"
			if !rec.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "- %s [%s]: %s\n", rec.Tool, status, truncate(rec.Excerpt, 300))
		}
	}
	if snap.KnowledgeContext != "" {
		b.WriteString("\nPrior knowledge:\n")
		b.WriteString(snap.KnowledgeContext)
		b.WriteString("\n")
	}

	b.WriteString("\nDecide the next actions. Respond with the JSON envelope only.")
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, ", "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
