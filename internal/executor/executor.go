// Package executor runs dispatched commands under a safety policy: a tool
// allowlist, blocked command patterns, a host scope check and a launch rate
// limit. Results are values, never errors; a failed command is still a
// result the analyzer can read.
package executor

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/redclawsec/redclaw/api/schemas"
)

// DefaultAllowedTools is the closed set of binaries a command line may start
// with when no allowlist is configured.
var DefaultAllowedTools = []string{
	"nmap", "gobuster", "curl", "nikto", "ssh", "sshpass",
	"cat", "ls", "grep", "find", "echo", "id", "hostname",
	"whoami", "nc", "wget", "dig", "host", "whatweb", "ffuf",
	"hydra", "smbclient", "enum4linux", "searchsploit", "python3",
}

// DefaultBlockedPatterns reject destructive or host-compromising commands
// regardless of the allowlist.
var DefaultBlockedPatterns = []string{
	`rm\s+-rf\s+/`,
	`mkfs`,
	`dd\s+if=`,
	`:\(\)\s*\{.*\};:`,
	`shutdown`,
	`reboot`,
	`>\s*/dev/sd`,
	`chmod\s+-R\s+777\s+/`,
}

// Config tunes the safety policy and execution limits.
type Config struct {
	AllowedTools    []string
	BlockedPatterns []string
	// AllowedHosts scopes execution: when non-empty, the command line must
	// mention at least one entry. An empty list disables the check.
	AllowedHosts []string
	// RatePerSecond caps tool launches. Zero or negative disables limiting.
	RatePerSecond  float64
	RateBurst      int
	WorkDir        string
	DefaultTimeout time.Duration
}

// Runner executes shell commands for the engagement loop.
type Runner struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	blocked []*regexp.Regexp
	allowed map[string]bool
}

// NewRunner compiles the policy. Invalid blocked patterns are an error so a
// typo cannot silently disable a guard.
func NewRunner(logger *zap.Logger, cfg Config) (*Runner, error) {
	if len(cfg.AllowedTools) == 0 {
		cfg.AllowedTools = DefaultAllowedTools
	}
	if len(cfg.BlockedPatterns) == 0 {
		cfg.BlockedPatterns = DefaultBlockedPatterns
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 2 * time.Minute
	}

	r := &Runner{
		cfg:     cfg,
		logger:  logger.Named("executor"),
		allowed: make(map[string]bool, len(cfg.AllowedTools)),
	}
	for _, t := range cfg.AllowedTools {
		r.allowed[t] = true
	}
	for _, p := range cfg.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling blocked pattern %q: %w", p, err)
		}
		r.blocked = append(r.blocked, re)
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return r, nil
}

// Vet checks a command against the policy without running it.
func (r *Runner) Vet(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return fmt.Errorf("empty command")
	}
	fields := strings.Fields(trimmed)
	tool := fields[0]
	if idx := strings.LastIndex(tool, "/"); idx >= 0 {
		tool = tool[idx+1:]
	}
	if !r.allowed[tool] {
		return fmt.Errorf("tool %q is not in the allowlist", tool)
	}
	for _, re := range r.blocked {
		if re.MatchString(trimmed) {
			return fmt.Errorf("command matches blocked pattern %q", re.String())
		}
	}
	if len(r.cfg.AllowedHosts) > 0 {
		inScope := false
		for _, h := range r.cfg.AllowedHosts {
			if strings.Contains(trimmed, h) {
				inScope = true
				break
			}
		}
		if !inScope {
			return fmt.Errorf("command references no in-scope host")
		}
	}
	return nil
}

// Invoke runs one dispatched request and always returns a result. Policy
// rejections, timeouts and non-zero exits are reported through the result's
// Success, Error and TimedOut fields.
func (r *Runner) Invoke(ctx context.Context, req schemas.InvocationRequest, timeout time.Duration) schemas.ToolInvocationResult {
	res := schemas.ToolInvocationResult{
		RequestID: req.ID,
		Action:    req.Action,
		Command:   req.Command,
	}
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	if err := r.Vet(req.Command); err != nil {
		r.logger.Warn("command rejected by policy",
			zap.String("action", req.Action),
			zap.Error(err))
		res.Error = err.Error()
		return res
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			res.Error = fmt.Sprintf("rate limiter: %v", err)
			return res
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, "sh", "-c", req.Command)
	if r.cfg.WorkDir != "" {
		cmd.Dir = r.cfg.WorkDir
	}
	out, err := cmd.CombinedOutput()
	res.Duration = time.Since(start)
	res.Output = string(out)

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		res.TimedOut = true
		res.Error = fmt.Sprintf("timed out after %s", timeout)
		r.logger.Warn("tool timed out",
			zap.String("action", req.Action),
			zap.Duration("timeout", timeout))
	case err != nil:
		res.Error = err.Error()
		r.logger.Debug("tool exited non-zero",
			zap.String("action", req.Action),
			zap.Error(err))
	default:
		res.Success = true
	}
	return res
}
