package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestMongoCollections_NilCollection(t *testing.T) {
	ctx := context.Background()

	expenses := &MongoExpenseCollection{}
	assert.Error(t, expenses.InsertExpense(ctx, &models.Expense{}))
	_, err := expenses.FindExpenseByID(ctx, primitive.NewObjectID())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	vehicles := &MongoVehicleCollection{}
	assert.Error(t, vehicles.InsertVehicle(ctx, &models.Vehicle{}))
	assert.Error(t, vehicles.ReplaceVehicle(ctx, &models.Vehicle{}))
}

// testDatabase connects to MONGO_URI and returns a fresh database, or skips.
func testDatabase(t *testing.T) *Mongo {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" || uri == "uri" {
		t.Skip("MONGO_URI not set or invalid, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	database := client.Database("fuelscope_test")
	require.NoError(t, database.Drop(context.Background()))
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	m := NewMongo(database)
	require.NoError(t, m.EnsureIndexes(context.Background()))
	return m
}

func TestMongoExpenseCollection_Integration(t *testing.T) {
	m := testDatabase(t)
	ctx := context.Background()
	vehicleID := primitive.NewObjectID()

	older := serviceExpense(vehicleID, "Oil Change", 1000, day(1))
	newer := serviceExpense(vehicleID, "oil change", 2000, day(2))
	require.NoError(t, m.Expenses.InsertExpense(ctx, older))
	require.NoError(t, m.Expenses.InsertExpense(ctx, newer))

	latest, err := m.Expenses.LatestService(ctx, vehicleID, "OIL CHANGE", primitive.NilObjectID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	newer.IsDeleted = true
	require.NoError(t, m.Expenses.ReplaceExpense(ctx, newer))

	found, err := m.Expenses.FindEquivalent(ctx, newer.Key(), true)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)

	max, ok, err := m.Expenses.MaxOdometer(ctx, vehicleID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1000.0, max)

	fuel := fuelExpense(vehicleID, 1500, day(3))
	require.NoError(t, m.Expenses.InsertExpense(ctx, fuel))
	sameDay, err := m.Expenses.FindFuelOnDay(ctx, vehicleID, 1500, 40, day(3).Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, fuel.ID, sameDay.ID)

	active, err := m.Expenses.ListActive(ctx, vehicleID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestMongoVehicleCollection_Integration(t *testing.T) {
	m := testDatabase(t)
	ctx := context.Background()

	v := &models.Vehicle{UserID: primitive.NewObjectID(), Name: "Golf", Odometer: 100}
	_, err := v.AddReminder(models.ServiceReminder{Type: "Oil Change", OdometerInterval: 5000, IsEnabled: true})
	require.NoError(t, err)
	require.NoError(t, m.Vehicles.InsertVehicle(ctx, v))

	a, err := m.Vehicles.FindVehicleByID(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, a.Reminders(), 1)
	b, err := m.Vehicles.FindVehicleByID(ctx, v.ID)
	require.NoError(t, err)

	a.AdvanceOdometer(500)
	require.NoError(t, m.Vehicles.ReplaceVehicle(ctx, a))
	assert.ErrorIs(t, m.Vehicles.ReplaceVehicle(ctx, b), ErrVersionConflict)

	require.NoError(t, m.Vehicles.DeleteVehicle(ctx, v.ID))
	_, err = m.Vehicles.FindVehicleByID(ctx, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
