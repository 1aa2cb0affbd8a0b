package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newestFirst orders by occurrence date, then id, descending.
var newestFirst = bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}

// caseInsensitive compares strings ignoring case and diacritics.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// MongoExpenseCollection implements ExpenseCollection for MongoDB.
type MongoExpenseCollection struct {
	Collection *mongo.Collection
}

// InsertExpense inserts an expense and assigns its id.
func (c *MongoExpenseCollection) InsertExpense(ctx context.Context, expense *models.Expense) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if expense.ID.IsZero() {
		expense.ID = primitive.NewObjectID()
	}
	now := time.Now()
	expense.CreatedAt = now
	expense.UpdatedAt = now
	_, err := c.Collection.InsertOne(ctx, expense)
	return err
}

// ReplaceExpense overwrites the stored expense with the same id.
func (c *MongoExpenseCollection) ReplaceExpense(ctx context.Context, expense *models.Expense) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	expense.UpdatedAt = time.Now()
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": expense.ID}, expense)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindExpenseByID finds an expense by its ID.
func (c *MongoExpenseCollection) FindExpenseByID(ctx context.Context, id primitive.ObjectID) (*models.Expense, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

// DeleteExpense removes an expense document.
func (c *MongoExpenseCollection) DeleteExpense(ctx context.Context, id primitive.ObjectID) error {
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeVehicle removes every expense of a vehicle.
func (c *MongoExpenseCollection) PurgeVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int64, error) {
	result, err := c.Collection.DeleteMany(ctx, bson.M{"vehicle_id": vehicleID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// FindEquivalent finds an expense with the same equivalence key.
func (c *MongoExpenseCollection) FindEquivalent(ctx context.Context, key models.EquivalenceKey, deleted bool) (*models.Expense, error) {
	filter := bson.M{
		"vehicle_id": key.VehicleID,
		"type":       key.Type,
		"odometer":   key.Odometer,
		"total_cost": key.TotalCost,
		"date":       key.Date,
		"is_deleted": deleted,
	}
	switch key.Type {
	case models.CategoryFuel:
		filter["fuel_details.fuel_brand"] = key.FuelBrand
	case models.CategoryService:
		filter["service_details.service_type"] = key.ServiceType
	}
	return c.findOne(ctx, filter, options.FindOne().SetSort(newestFirst))
}

// FindFuelOnDay finds a fuel expense on the same calendar day, including
// soft-deleted ones.
func (c *MongoExpenseCollection) FindFuelOnDay(ctx context.Context, vehicleID primitive.ObjectID, odometer, totalCost float64, day time.Time) (*models.Expense, error) {
	start, end := dayBounds(day)
	filter := bson.M{
		"vehicle_id": vehicleID,
		"type":       models.CategoryFuel,
		"odometer":   odometer,
		"total_cost": totalCost,
		"date":       bson.M{"$gte": start, "$lt": end},
	}
	return c.findOne(ctx, filter, options.FindOne().SetSort(newestFirst))
}

// RecentFuel returns the newest active fuel expenses.
func (c *MongoExpenseCollection) RecentFuel(ctx context.Context, vehicleID, excludeID primitive.ObjectID, limit int) ([]models.Expense, error) {
	filter := bson.M{
		"vehicle_id": vehicleID,
		"type":       models.CategoryFuel,
		"is_deleted": false,
		"_id":        bson.M{"$ne": excludeID},
	}
	opts := options.Find().SetSort(newestFirst).SetLimit(int64(limit))
	return c.find(ctx, filter, opts)
}

// LatestService returns the newest active service expense of a type.
func (c *MongoExpenseCollection) LatestService(ctx context.Context, vehicleID primitive.ObjectID, serviceType string, excludeID primitive.ObjectID) (*models.Expense, error) {
	filter := bson.M{
		"vehicle_id":                   vehicleID,
		"type":                         models.CategoryService,
		"service_details.service_type": serviceType,
		"is_deleted":                   false,
		"_id":                          bson.M{"$ne": excludeID},
	}
	opts := options.FindOne().SetSort(newestFirst).SetCollation(caseInsensitive)
	return c.findOne(ctx, filter, opts)
}

// MaxOdometer returns the highest odometer of the vehicle's active expenses.
func (c *MongoExpenseCollection) MaxOdometer(ctx context.Context, vehicleID primitive.ObjectID) (float64, bool, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "odometer", Value: -1}}).
		SetProjection(bson.M{"odometer": 1})
	e, err := c.findOne(ctx, bson.M{"vehicle_id": vehicleID, "is_deleted": false}, opts)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return e.Odometer, true, nil
}

// ListActive returns the vehicle's active expenses, oldest first.
func (c *MongoExpenseCollection) ListActive(ctx context.Context, vehicleID primitive.ObjectID) ([]models.Expense, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	return c.find(ctx, bson.M{"vehicle_id": vehicleID, "is_deleted": false}, opts)
}

func (c *MongoExpenseCollection) findOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Expense, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var expense models.Expense
	err := c.Collection.FindOne(ctx, filter, opts...).Decode(&expense)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &expense, nil
}

func (c *MongoExpenseCollection) find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Expense, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	expenses := []models.Expense{}
	if err := cursor.All(ctx, &expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}
