package oracle

import (
	"context"
	"sync"

	"github.com/redclawsec/redclaw/api/schemas"
)

// MockClient is a deterministic in-process oracle used for dry runs and
// offline testing. Scripted responses are replayed in order; once exhausted
// it answers every plan request with an empty plan.
type MockClient struct {
	mu        sync.Mutex
	responses []string
}

// NewMockClient creates a mock oracle that replays the given responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// Generate pops the next scripted response, falling back to a harmless
// canned answer for the request shape.
func (m *MockClient) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.responses) > 0 {
		next := m.responses[0]
		m.responses = m.responses[1:]
		return next, nil
	}
	if req.Options.ForceJSONFormat {
		return `{"actions": []}`, nil
	}
	return "Dry run: no reasoning model configured.", nil
}
