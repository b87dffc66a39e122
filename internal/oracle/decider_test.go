package oracle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
)

type stubClient struct {
	response string
	err      error
	lastReq  schemas.GenerationRequest
}

func (s *stubClient) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.lastReq = req
	return s.response, s.err
}

func TestDecideParsesEnvelope(t *testing.T) {
	stub := &stubClient{response: `{"actions":[{"name":"nmap_scan","args":{"scan_type":"quick"},"rationale":"initial sweep"}]}`}
	d := NewDecider(stub, zap.NewNop(), time.Second)

	got, err := d.Decide(context.Background(), schemas.ContextSnapshot{Target: "10.10.10.5"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nmap_scan", got[0].Name)
	assert.Equal(t, "quick", got[0].Args["scan_type"])
	assert.True(t, stub.lastReq.Options.ForceJSONFormat)
}

func TestDecideParsesFencedArray(t *testing.T) {
	stub := &stubClient{response: "```json\n[{\"name\":\"curl_request\",\"args\":{\"url\":\"http://x/\"}}]\n```"}
	d := NewDecider(stub, zap.NewNop(), 0)

	got, err := d.Decide(context.Background(), schemas.ContextSnapshot{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "curl_request", got[0].Name)
}

func TestDecideParsesSingleObject(t *testing.T) {
	stub := &stubClient{response: `{"name":"record_flag","args":{"flag":"flag{x}"}}`}
	d := NewDecider(stub, zap.NewNop(), 0)

	got, err := d.Decide(context.Background(), schemas.ContextSnapshot{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "record_flag", got[0].Name)
}

func TestDecideEmptyEnvelopeIsValid(t *testing.T) {
	stub := &stubClient{response: `{"actions": []}`}
	d := NewDecider(stub, zap.NewNop(), 0)

	got, err := d.Decide(context.Background(), schemas.ContextSnapshot{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecideDropsNamelessProposals(t *testing.T) {
	stub := &stubClient{response: `{"actions":[{"name":""},{"name":"nmap_scan"}]}`}
	d := NewDecider(stub, zap.NewNop(), 0)

	got, err := d.Decide(context.Background(), schemas.ContextSnapshot{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Args)
}

func TestDecideGenerationError(t *testing.T) {
	stub := &stubClient{err: fmt.Errorf("boom")}
	d := NewDecider(stub, zap.NewNop(), 0)

	_, err := d.Decide(context.Background(), schemas.ContextSnapshot{})
	assert.Error(t, err)
}

func TestDecideUnparseableResponse(t *testing.T) {
	stub := &stubClient{response: "I think you should try scanning the target."}
	d := NewDecider(stub, zap.NewNop(), 0)

	_, err := d.Decide(context.Background(), schemas.ContextSnapshot{})
	assert.Error(t, err)
}

func TestBuildUserPromptIncludesState(t *testing.T) {
	snap := schemas.ContextSnapshot{
		Target:    "10.10.10.5",
		Objective: "capture the flags",
		Phase:     "scanning",
		Iteration: 3,
		Budget:    50,
		PortCount: 2,
		Ports:     []string{"22/tcp", "80/tcp"},
		RecentTools: []schemas.ToolCallRecord{
			{Tool: "nmap_scan", Success: true, Excerpt: "22/tcp open ssh"},
		},
		KnowledgeContext: "previous run found an admin panel",
	}
	prompt := buildUserPrompt(snap)
	assert.Contains(t, prompt, "10.10.10.5")
	assert.Contains(t, prompt, "22/tcp, 80/tcp")
	assert.Contains(t, prompt, "nmap_scan [ok]")
	assert.Contains(t, prompt, "admin panel")
	assert.Contains(t, prompt, "Iteration: 3 of 50")
}
