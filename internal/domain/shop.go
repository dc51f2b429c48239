package domain

import (
	"strings"
	"time"
)

// StorefrontSuffix is the domain suffix every Shopify storefront carries.
const StorefrontSuffix = ".myshopify.com"

// Shop represents an installed shop and its subscription state
type Shop struct {
	Domain        string    `json:"domain" bson:"domain"`
	AccessToken   string    `json:"accessToken" bson:"accessToken"`
	InstalledAt   time.Time `json:"installedAt" bson:"installedAt"`
	ChargeID      *int64    `json:"chargeId,omitempty" bson:"chargeId,omitempty"`
	BillingActive bool      `json:"billingActive" bson:"billingActive"`
}

// IsShopDomain reports whether s looks like a Shopify storefront domain.
func IsShopDomain(s string) bool {
	return s != "" && strings.HasSuffix(s, StorefrontSuffix) && len(s) > len(StorefrontSuffix)
}
