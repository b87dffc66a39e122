// Package knowledge persists discoveries across engagements so the oracle can
// be reminded of what earlier runs already learned about a target.
package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
	"github.com/redclawsec/redclaw/internal/config"
)

// Store is the discovery persistence contract. Both implementations are safe
// for concurrent use.
type Store interface {
	// Record persists one discovery. Duplicate (target, category, key)
	// entries overwrite the previous value.
	Record(ctx context.Context, rec schemas.DiscoveryRecord) error
	// RetrieveRelevant renders the stored knowledge about a target as a
	// compact text block for prompt inclusion.
	RetrieveRelevant(ctx context.Context, target string) (string, error)
	Close()
}

// NewFromConfig selects the store backend. The postgres backend needs a
// reachable database at startup.
func NewFromConfig(ctx context.Context, cfg config.KnowledgeConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(logger), nil
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown knowledge store type %q", cfg.Type)
	}
}
