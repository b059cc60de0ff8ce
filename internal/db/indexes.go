package db

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Index names referenced when classifying duplicate key errors.
const (
	IndexBookingKey = "bookingKey_1"
	IndexClientIP   = "clientIP_1"
)

type indexSpec struct {
	collection string
	model      mongo.IndexModel
}

func indexSpecs() []indexSpec {
	return []indexSpec{
		{"bookings", mongo.IndexModel{
			Keys: bson.D{{Key: "bookingKey", Value: 1}},
			Options: options.Index().
				SetName(IndexBookingKey).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"bookingKey": bson.M{"$exists": true}}),
		}},
		{"bookings", mongo.IndexModel{Keys: bson.D{{Key: "customerMessageId", Value: 1}}}},
		{"bookings", mongo.IndexModel{Keys: bson.D{{Key: "requestId", Value: 1}}}},
		{"bookings", mongo.IndexModel{Keys: bson.D{{Key: "repairShopUid", Value: 1}, {Key: "status", Value: 1}}}},
		{"bookings", mongo.IndexModel{Keys: bson.D{{Key: "customerEmail", Value: 1}, {Key: "status", Value: 1}}}},
		{"temporaryUsers", mongo.IndexModel{
			Keys:    bson.D{{Key: "clientIP", Value: 1}},
			Options: options.Index().SetName(IndexClientIP).SetUnique(true),
		}},
		{"temporaryUsers", mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}}},
		{"users", mongo.IndexModel{Keys: bson.D{{Key: "uid", Value: 1}}}},
		{"users", mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}}},
		{"users", mongo.IndexModel{Keys: bson.D{{Key: "location", Value: 1}, {Key: "repairShop", Value: 1}}}},
		{"auth_identities", mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{"auth_identities", mongo.IndexModel{Keys: bson.D{{Key: "uid", Value: 1}}}},
		{"contactRepairShops", mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}}},
		{"contactRepairShops", mongo.IndexModel{Keys: bson.D{{Key: "location", Value: 1}, {Key: "validDate", Value: 1}}}},
		{"bookingPayments", mongo.IndexModel{Keys: bson.D{{Key: "bookingId", Value: 1}, {Key: "uid", Value: 1}}}},
		{"email_templates", mongo.IndexModel{
			Keys:    bson.D{{Key: "template_id", Value: 1}, {Key: "locale", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{"notification_outbox", mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}}},
	}
}

// EnsureIndexes creates the indexes the services rely on. CreateMany is a
// no-op for indexes that already exist with the same definition.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	byCollection := make(map[string][]mongo.IndexModel)
	var order []string
	for _, spec := range indexSpecs() {
		if _, ok := byCollection[spec.collection]; !ok {
			order = append(order, spec.collection)
		}
		byCollection[spec.collection] = append(byCollection[spec.collection], spec.model)
	}

	for _, name := range order {
		created, err := database.Collection(name).Indexes().CreateMany(ctx, byCollection[name])
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
		log.Printf("Ensured %d indexes on %s", len(created), name)
	}
	return nil
}
