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

func TestSummarizeUsesFastTier(t *testing.T) {
	stub := &stubClient{response: "\nThe host exposed SSH and an outdated web server.\n"}
	s := NewSummarizer(stub, zap.NewNop(), time.Second)

	got, err := s.Summarize(context.Background(), "# Engagement Report: 10.10.10.5")
	require.NoError(t, err)
	assert.Equal(t, "The host exposed SSH and an outdated web server.", got)
	assert.Equal(t, schemas.TierFast, stub.lastReq.Tier)
	assert.False(t, stub.lastReq.Options.ForceJSONFormat)
}

func TestSummarizeGenerationError(t *testing.T) {
	stub := &stubClient{err: fmt.Errorf("boom")}
	s := NewSummarizer(stub, zap.NewNop(), 0)

	_, err := s.Summarize(context.Background(), "findings")
	assert.Error(t, err)
}

func TestSummarizeEmptyResponse(t *testing.T) {
	stub := &stubClient{response: "   \n"}
	s := NewSummarizer(stub, zap.NewNop(), 0)

	_, err := s.Summarize(context.Background(), "findings")
	assert.Error(t, err)
}
