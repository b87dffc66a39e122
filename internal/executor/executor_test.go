package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
)

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	r, err := NewRunner(zap.NewNop(), cfg)
	require.NoError(t, err)
	return r
}

func TestVetAllowlist(t *testing.T) {
	r := newTestRunner(t, Config{})
	assert.NoError(t, r.Vet("nmap -sV 10.10.10.5"))
	assert.NoError(t, r.Vet("/usr/bin/curl -s http://x/"))
	assert.Error(t, r.Vet("msfconsole -q"))
	assert.Error(t, r.Vet(""))
	assert.Error(t, r.Vet("   "))
}

func TestVetBlockedPatterns(t *testing.T) {
	r := newTestRunner(t, Config{})
	assert.Error(t, r.Vet("echo hi; rm -rf /"))
	assert.Error(t, r.Vet("dd if=/dev/zero of=/dev/sda"))
	assert.NoError(t, r.Vet("echo rm is a word"))
}

func TestVetScope(t *testing.T) {
	r := newTestRunner(t, Config{AllowedHosts: []string{"10.10.10.5"}})
	assert.NoError(t, r.Vet("nmap 10.10.10.5"))
	assert.Error(t, r.Vet("nmap 192.168.1.1"))
}

func TestNewRunnerRejectsBadPattern(t *testing.T) {
	_, err := NewRunner(zap.NewNop(), Config{BlockedPatterns: []string{"("}})
	assert.Error(t, err)
}

func TestInvokeSuccess(t *testing.T) {
	r := newTestRunner(t, Config{})
	res := r.Invoke(context.Background(), schemas.InvocationRequest{
		ID:      "req-1",
		Action:  "bash_command",
		Command: "echo hello",
	}, time.Second)

	assert.True(t, res.Success)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, "hello\n", res.Output)
	assert.False(t, res.TimedOut)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestInvokePolicyRejection(t *testing.T) {
	r := newTestRunner(t, Config{})
	res := r.Invoke(context.Background(), schemas.InvocationRequest{
		Action:  "bash_command",
		Command: "forbidden_tool --flag",
	}, time.Second)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "allowlist")
	assert.Empty(t, res.Output)
}

func TestInvokeNonZeroExit(t *testing.T) {
	r := newTestRunner(t, Config{AllowedTools: []string{"sh", "grep"}})
	res := r.Invoke(context.Background(), schemas.InvocationRequest{
		Action:  "bash_command",
		Command: "grep nothing /dev/null",
	}, time.Second)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.False(t, res.TimedOut)
}

func TestInvokeTimeout(t *testing.T) {
	r := newTestRunner(t, Config{AllowedTools: []string{"sleep"}})
	res := r.Invoke(context.Background(), schemas.InvocationRequest{
		Action:  "bash_command",
		Command: "sleep 5",
	}, 100*time.Millisecond)

	assert.False(t, res.Success)
	assert.True(t, res.TimedOut)
	assert.True(t, strings.Contains(res.Error, "timed out"))
}

func TestInvokeRateLimiterHonorsContext(t *testing.T) {
	r := newTestRunner(t, Config{RatePerSecond: 0.001, RateBurst: 1})

	// Burn the burst token.
	_ = r.Invoke(context.Background(), schemas.InvocationRequest{
		Command: "echo one",
	}, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := r.Invoke(ctx, schemas.InvocationRequest{Command: "echo two"}, time.Second)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rate limiter")
}
