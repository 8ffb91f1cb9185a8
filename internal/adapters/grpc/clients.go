package grpc

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// CatalogClient resolves licensing policy for a product from M21 catalog.
// Until the catalog internal proto ships, this client answers with a static
// policy so issuance stays exercisable end to end.
type CatalogClient struct {
	target string
	logger *slog.Logger
}

func NewCatalogClient(target string, logger *slog.Logger) *CatalogClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogClient{target: target, logger: logger}
}

func (c *CatalogClient) GetLicensingPolicy(ctx context.Context, productID string) (ports.LicensingPolicy, error) {
	if productID == "" {
		return ports.LicensingPolicy{}, domain.ErrInvalidInput
	}
	c.logger.DebugContext(ctx, "catalog licensing policy stubbed",
		"module", "grpc",
		"layer", "adapter",
		"operation", "get_licensing_policy",
		"outcome", "stub",
		"target", c.target,
		"product_id", productID,
	)
	return ports.LicensingPolicy{
		ProductType:    "one_time_license",
		ProductName:    "Licensed Product",
		KeyPrefix:      domain.DefaultKeyPrefix,
		MaxActivations: 0,
		DurationDays:   0,
	}, nil
}
