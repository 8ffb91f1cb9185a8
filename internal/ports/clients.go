package ports

import "context"

// LicensingPolicy is the catalog-owned licensing configuration of a product.
// Non-license product types produce no key at issuance.
type LicensingPolicy struct {
	ProductType    string
	ProductName    string
	KeyPrefix      string
	MaxActivations int
	DurationDays   int
}

// IsLicensed reports whether completing an order for this product should
// issue a license key at all.
func (p LicensingPolicy) IsLicensed() bool {
	return p.ProductType == "one_time_license" || p.ProductType == "subscription_license"
}

// CatalogClient resolves product licensing policy from the catalog service.
type CatalogClient interface {
	GetLicensingPolicy(ctx context.Context, productID string) (LicensingPolicy, error)
}
