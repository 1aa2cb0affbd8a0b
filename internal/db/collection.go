package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a looked-up document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned when a vehicle was modified between read and write.
	ErrVersionConflict = errors.New("vehicle was modified concurrently")
)

// ExpenseCollection defines the interface for expense data operations.
// Single-document lookups return ErrNotFound when nothing matches.
type ExpenseCollection interface {
	InsertExpense(ctx context.Context, expense *models.Expense) error
	ReplaceExpense(ctx context.Context, expense *models.Expense) error
	FindExpenseByID(ctx context.Context, id primitive.ObjectID) (*models.Expense, error)
	// DeleteExpense removes a document physically. Only used to compensate a
	// write that could not be completed.
	DeleteExpense(ctx context.Context, id primitive.ObjectID) error
	PurgeVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int64, error)

	// FindEquivalent finds a record matching key exactly, active or soft-deleted.
	FindEquivalent(ctx context.Context, key models.EquivalenceKey, deleted bool) (*models.Expense, error)
	// FindFuelOnDay finds a fuel record, active or not, on the calendar day of day.
	FindFuelOnDay(ctx context.Context, vehicleID primitive.ObjectID, odometer, totalCost float64, day time.Time) (*models.Expense, error)
	// RecentFuel returns up to limit active fuel records other than excludeID,
	// newest first.
	RecentFuel(ctx context.Context, vehicleID, excludeID primitive.ObjectID, limit int) ([]models.Expense, error)
	// LatestService returns the newest active service record of serviceType
	// (case-insensitive) other than excludeID. Date ties go to the higher id.
	LatestService(ctx context.Context, vehicleID primitive.ObjectID, serviceType string, excludeID primitive.ObjectID) (*models.Expense, error)
	// MaxOdometer returns the highest odometer among active records.
	MaxOdometer(ctx context.Context, vehicleID primitive.ObjectID) (float64, bool, error)
	// ListActive returns active records, oldest first.
	ListActive(ctx context.Context, vehicleID primitive.ObjectID) ([]models.Expense, error)
}

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error
	FindVehicleByID(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error)
	FindVehiclesByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Vehicle, error)
	CountVehiclesByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
	// ReplaceVehicle writes the whole document, embedded reminders included,
	// if the stored version still equals vehicle.Version. On success the
	// version is incremented on both sides.
	ReplaceVehicle(ctx context.Context, vehicle *models.Vehicle) error
	DeleteVehicle(ctx context.Context, id primitive.ObjectID) error
}

// UserCollection defines the interface for user database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// dayBounds returns the start of t's calendar day and the start of the next.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
