package entity

import (
	"time"

	"shopify-orders-exporter/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoShopDoc represents an installed shop in MongoDB
type MongoShopDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Domain        string             `bson:"domain"`
	AccessToken   string             `bson:"accessToken"`
	InstalledAt   time.Time          `bson:"installedAt"`
	ChargeID      *int64             `bson:"chargeId,omitempty"`
	BillingActive bool               `bson:"billingActive"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoShopDoc) ToDomain() *domain.Shop {
	return &domain.Shop{
		Domain:        d.Domain,
		AccessToken:   d.AccessToken,
		InstalledAt:   d.InstalledAt,
		ChargeID:      d.ChargeID,
		BillingActive: d.BillingActive,
	}
}
