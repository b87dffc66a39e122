package oracle

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
	"github.com/redclawsec/redclaw/internal/config"
)

// NewClient builds a tier-routing oracle client from configuration.
func NewClient(cfg config.OracleConfig, logger *zap.Logger) (schemas.OracleClient, error) {
	fast, err := newTierClient(cfg.Fast, logger)
	if err != nil {
		return nil, fmt.Errorf("building fast tier client: %w", err)
	}
	powerful, err := newTierClient(cfg.Powerful, logger)
	if err != nil {
		return nil, fmt.Errorf("building powerful tier client: %w", err)
	}
	return NewRouter(logger, fast, powerful)
}

func newTierClient(cfg config.OracleModelConfig, logger *zap.Logger) (schemas.OracleClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case config.ProviderMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported oracle provider %q, supported: [%s %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderMock)
	}
}
