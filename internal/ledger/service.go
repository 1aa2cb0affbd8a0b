// Package ledger implements the expense ledger: duplicate reconciliation,
// odometer monotonicity, fuel efficiency analysis, service reminders and
// CSV import/export.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/models"
	"github.com/ukydev/fuelscope/internal/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxVehicleWriteAttempts bounds optimistic retries on a vehicle document.
const maxVehicleWriteAttempts = 5

// Caller identifies the authenticated user of a request.
type Caller struct {
	UserID primitive.ObjectID
	Role   models.Role
}

// Ledger is the expense ledger engine.
type Ledger struct {
	expenses   db.ExpenseCollection
	vehicles   db.VehicleCollection
	guard      OdometerGuard
	reconciler Reconciler
	notifier   notify.Notifier
	log        logrus.FieldLogger
	now        func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = logger }
}

// WithNotifier sets where alerts are published.
func WithNotifier(n notify.Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// WithClock overrides the current time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger over the given collections.
func New(expenses db.ExpenseCollection, vehicles db.VehicleCollection, opts ...Option) *Ledger {
	l := &Ledger{
		expenses:   expenses,
		vehicles:   vehicles,
		guard:      OdometerGuard{expenses: expenses},
		reconciler: Reconciler{expenses: expenses},
		notifier:   notify.Discard{},
		log:        logrus.StandardLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ownedVehicle loads a vehicle and checks that caller owns it.
func (l *Ledger) ownedVehicle(ctx context.Context, caller Caller, id primitive.ObjectID) (*models.Vehicle, error) {
	v, err := l.vehicles.FindVehicleByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("vehicle %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find vehicle %s: %w", id.Hex(), err)
	}
	if v.UserID != caller.UserID {
		return nil, fmt.Errorf("vehicle %s: %w", id.Hex(), ErrForbidden)
	}
	return v, nil
}

// mutateVehicle applies fn to a fresh copy of the vehicle and writes it back,
// retrying when another writer got there first. fn reports whether it
// changed anything; unchanged vehicles are not written.
func (l *Ledger) mutateVehicle(ctx context.Context, id primitive.ObjectID, fn func(v *models.Vehicle) (bool, error)) (*models.Vehicle, error) {
	for attempt := 1; attempt <= maxVehicleWriteAttempts; attempt++ {
		v, err := l.vehicles.FindVehicleByID(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("vehicle %s: %w", id.Hex(), ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("find vehicle %s: %w", id.Hex(), err)
		}

		changed, err := fn(v)
		if err != nil {
			return nil, err
		}
		if !changed {
			return v, nil
		}

		err = l.vehicles.ReplaceVehicle(ctx, v)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return nil, fmt.Errorf("save vehicle %s: %w", id.Hex(), err)
		}
		l.log.WithFields(logrus.Fields{
			"vehicle_id": id.Hex(),
			"attempt":    attempt,
		}).Debug("Vehicle modified concurrently, retrying")
	}
	return nil, fmt.Errorf("save vehicle %s after %d attempts: %w", id.Hex(), maxVehicleWriteAttempts, db.ErrVersionConflict)
}

// publish sends alerts; delivery failures never fail the write.
func (l *Ledger) publish(ctx context.Context, alerts []notify.Alert) {
	for _, alert := range alerts {
		if err := l.notifier.Publish(ctx, alert); err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{
				"kind":       alert.Kind,
				"vehicle_id": alert.VehicleID,
			}).Warn("Failed to publish alert")
		}
	}
}
