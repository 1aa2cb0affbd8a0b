package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	ExpensesCollection = "expenses"
	VehiclesCollection = "vehicles"
	UsersCollection    = "users"
)

// ConnectMongo connects to MongoDB at uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	// Ping to verify connection
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Mongo bundles the collections of one database.
type Mongo struct {
	Expenses *MongoExpenseCollection
	Vehicles *MongoVehicleCollection
	Users    *MongoUserCollection
}

// NewMongo wires the collections of database.
func NewMongo(database *mongo.Database) *Mongo {
	return &Mongo{
		Expenses: &MongoExpenseCollection{Collection: database.Collection(ExpensesCollection)},
		Vehicles: &MongoVehicleCollection{Collection: database.Collection(VehiclesCollection)},
		Users:    &MongoUserCollection{Collection: database.Collection(UsersCollection)},
	}
}

// EnsureIndexes creates the indexes the ledger queries rely on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.Expenses.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "type", Value: 1}, {Key: "is_deleted", Value: 1}, {Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "odometer", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create expense indexes: %w", err)
	}
	_, err = m.Vehicles.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create vehicle indexes: %w", err)
	}
	_, err = m.Users.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}
