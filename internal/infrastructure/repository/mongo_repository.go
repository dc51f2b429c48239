package repository

import (
	"context"
	"fmt"
	"time"

	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/infrastructure/repository/entity"
	"shopify-orders-exporter/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoShopRepository implements ShopStore using MongoDB. Every mutation is
// a single atomic update on the shop's document, so concurrent installs and
// billing confirmations cannot lose each other's writes.
type MongoShopRepository struct {
	collection *mongo.Collection
}

// NewMongoShopRepository creates a new MongoDB shop repository
func NewMongoShopRepository(db *mongo.Database) ports.ShopStore {
	return &MongoShopRepository{
		collection: db.Collection("shops"),
	}
}

// GetShop retrieves a shop by domain, nil if absent
func (r *MongoShopRepository) GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	var doc entity.MongoShopDoc
	filter := bson.M{"domain": shopDomain}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	return doc.ToDomain(), nil
}

// UpsertToken creates or refreshes the shop record's access token without
// touching billing fields
func (r *MongoShopRepository) UpsertToken(ctx context.Context, shopDomain, accessToken string, installedAt time.Time) error {
	now := time.Now()
	opts := options.Update().SetUpsert(true)
	filter := bson.M{"domain": shopDomain}
	update := bson.M{
		"$set": bson.M{
			"accessToken": accessToken,
			"installedAt": installedAt,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{
			"createdAt": now,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert shop token: %w", err)
	}

	return nil
}

// ActivateBilling marks the shop's recurring charge as approved
func (r *MongoShopRepository) ActivateBilling(ctx context.Context, shopDomain string, chargeID int64) error {
	filter := bson.M{"domain": shopDomain}
	update := bson.M{
		"$set": bson.M{
			"billingActive": true,
			"chargeId":      chargeID,
			"updatedAt":     time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to activate billing: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("shop not found: %s", shopDomain)
	}

	return nil
}

// ListShops retrieves all shops
func (r *MongoShopRepository) ListShops(ctx context.Context) ([]*domain.Shop, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer cursor.Close(ctx)

	var shops []*domain.Shop
	for cursor.Next(ctx) {
		var doc entity.MongoShopDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode shop: %w", err)
		}
		shops = append(shops, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return shops, nil
}
