package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
)

const summarySystemPrompt = `You write the executive summary of a penetration test report.
Given the findings below, write two to four short paragraphs of plain prose for a
non-technical audience: what was tested, what was found, and the overall risk.
No headings, no bullet lists, no preamble. Respond with the summary text only.`

// Summarizer condenses a finished engagement into an executive summary. The
// task is routine prose generation, so it runs on the fast model tier.
type Summarizer struct {
	client  schemas.OracleClient
	logger  *zap.Logger
	timeout time.Duration
}

// NewSummarizer wires a summarizer over any oracle client. A zero timeout
// disables the per-call deadline.
func NewSummarizer(client schemas.OracleClient, logger *zap.Logger, timeout time.Duration) *Summarizer {
	return &Summarizer{
		client:  client,
		logger:  logger.Named("oracle.summarizer"),
		timeout: timeout,
	}
}

// Summarize turns the rendered findings into summary prose.
func (s *Summarizer) Summarize(ctx context.Context, findings string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   findings,
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature: 0.4,
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}

	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", fmt.Errorf("summary generation returned an empty response")
	}

	s.logger.Debug("Executive summary generated", zap.Int("length", len(summary)))
	return summary, nil
}
