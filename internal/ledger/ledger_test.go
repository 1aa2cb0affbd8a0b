package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/models"
	"github.com/ukydev/fuelscope/internal/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, alert notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Kind
	for _, a := range n.alerts {
		out = append(out, a.Kind)
	}
	return out
}

type fixture struct {
	ledger   *Ledger
	store    *db.MemoryStore
	notifier *recordingNotifier
	caller   Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := db.NewMemoryStore()
	notifier := &recordingNotifier{}
	logger, _ := test.NewNullLogger()
	return &fixture{
		ledger: New(store, store,
			WithLogger(logger),
			WithNotifier(notifier),
			WithClock(func() time.Time { return testNow }),
		),
		store:    store,
		notifier: notifier,
		caller:   Caller{UserID: primitive.NewObjectID(), Role: models.RoleAdmin},
	}
}

func (f *fixture) vehicle(t *testing.T, odometer float64) *models.Vehicle {
	t.Helper()
	v, err := f.ledger.CreateVehicle(context.Background(), f.caller, VehicleRequest{Name: "Corolla", Odometer: num(odometer)})
	require.NoError(t, err)
	return v
}

func (f *fixture) reload(t *testing.T, id primitive.ObjectID) *models.Vehicle {
	t.Helper()
	v, err := f.store.FindVehicleByID(context.Background(), id)
	require.NoError(t, err)
	return v
}

func num(v float64) *float64 { return &v }

func march(d int) time.Time {
	return time.Date(2024, time.March, d, 9, 0, 0, 0, time.UTC)
}

// fuel builds a fill-up at price 2 per liter, so the derived volume equals liters.
func fuel(vehicleID primitive.ObjectID, odometer, liters float64, date time.Time) AddExpenseRequest {
	return AddExpenseRequest{
		VehicleID: vehicleID,
		ExpenseInput: ExpenseInput{
			Type:        models.CategoryFuel,
			FuelDetails: &models.FuelDetails{FuelBrand: "Shell", PricePerLiter: 2},
			Odometer:    num(odometer),
			TotalCost:   num(liters * 2),
			Date:        date,
		},
	}
}

func service(vehicleID primitive.ObjectID, serviceType string, odometer float64, date time.Time, reminder *ReminderRequest) AddExpenseRequest {
	return AddExpenseRequest{
		VehicleID: vehicleID,
		ExpenseInput: ExpenseInput{
			Type:           models.CategoryService,
			ServiceDetails: &models.ServiceDetails{ServiceType: serviceType},
			Odometer:       num(odometer),
			TotalCost:      num(150),
			Date:           date,
		},
		Reminder: reminder,
	}
}
