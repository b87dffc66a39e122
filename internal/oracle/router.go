package oracle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
)

// Router implements schemas.OracleClient and routes requests by tier.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.OracleClient
}

// NewRouter creates a router with a client for each tier.
func NewRouter(logger *zap.Logger, fastClient, powerfulClient schemas.OracleClient) (*Router, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}

	return &Router{
		logger: logger.Named("oracle.router"),
		clients: map[schemas.ModelTier]schemas.OracleClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

// Generate selects the client for the request's tier. An empty tier defaults
// to the powerful model.
func (r *Router) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}

	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no oracle client configured for tier: %s", tier)
	}

	r.logger.Debug("Routing oracle request", zap.String("tier", string(tier)))
	return client.Generate(ctx, req)
}
