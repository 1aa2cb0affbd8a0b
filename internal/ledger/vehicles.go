package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleRequest is the input of CreateVehicle and UpdateVehicle.
type VehicleRequest struct {
	Name     string   `json:"name"`
	Odometer *float64 `json:"odometer"`
}

func (r VehicleRequest) validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if r.Odometer == nil {
		missing = append(missing, "odometer")
	}
	if len(missing) > 0 {
		return invalid("name and odometer are required", missing...)
	}
	if *r.Odometer < 0 {
		return invalid("odometer must not be negative", "odometer")
	}
	return nil
}

// CreateVehicle registers a vehicle for the caller within the role's limit.
func (l *Ledger) CreateVehicle(ctx context.Context, caller Caller, req VehicleRequest) (*models.Vehicle, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	limit := models.MaxVehicles(caller.Role)
	if limit >= 0 {
		count, err := l.vehicles.CountVehiclesByUser(ctx, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("count vehicles: %w", err)
		}
		if count >= int64(limit) {
			return nil, fmt.Errorf("role %q allows a maximum of %d vehicles: %w", caller.Role, limit, ErrVehicleLimit)
		}
	}

	v := &models.Vehicle{
		UserID:    caller.UserID,
		Name:      strings.TrimSpace(req.Name),
		Odometer:  *req.Odometer,
		CreatedAt: l.now(),
	}
	if err := l.vehicles.InsertVehicle(ctx, v); err != nil {
		return nil, fmt.Errorf("insert vehicle: %w", err)
	}
	l.log.WithFields(logrus.Fields{"vehicle_id": v.ID.Hex(), "user_id": caller.UserID.Hex()}).Info("Vehicle created")
	return v, nil
}

// GetVehicle returns one of the caller's vehicles.
func (l *Ledger) GetVehicle(ctx context.Context, caller Caller, id primitive.ObjectID) (*models.Vehicle, error) {
	return l.ownedVehicle(ctx, caller, id)
}

// ListVehicles returns the caller's vehicles.
func (l *Ledger) ListVehicles(ctx context.Context, caller Caller) ([]models.Vehicle, error) {
	vehicles, err := l.vehicles.FindVehiclesByUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return vehicles, nil
}

// UpdateVehicle renames a vehicle and sets its odometer. The odometer may
// only move forward, and never below the latest recorded expense.
func (l *Ledger) UpdateVehicle(ctx context.Context, caller Caller, id primitive.ObjectID, req VehicleRequest) (*models.Vehicle, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := l.ownedVehicle(ctx, caller, id); err != nil {
		return nil, err
	}
	return l.mutateVehicle(ctx, id, func(v *models.Vehicle) (bool, error) {
		if err := l.guard.ValidateAdvance(ctx, v, *req.Odometer); err != nil {
			return false, err
		}
		v.Name = strings.TrimSpace(req.Name)
		v.Odometer = *req.Odometer
		return true, nil
	})
}

// DeleteVehicle removes a vehicle together with all of its expenses.
func (l *Ledger) DeleteVehicle(ctx context.Context, caller Caller, id primitive.ObjectID) error {
	if _, err := l.ownedVehicle(ctx, caller, id); err != nil {
		return err
	}
	purged, err := l.expenses.PurgeVehicle(ctx, id)
	if err != nil {
		return fmt.Errorf("purge expenses of vehicle %s: %w", id.Hex(), err)
	}
	if err := l.vehicles.DeleteVehicle(ctx, id); err != nil {
		return fmt.Errorf("delete vehicle %s: %w", id.Hex(), err)
	}
	l.log.WithFields(logrus.Fields{"vehicle_id": id.Hex(), "expenses": purged}).Info("Vehicle deleted")
	return nil
}

// AddReminderRequest is the input of AddReminder.
type AddReminderRequest struct {
	Type               string  `json:"type"`
	OdometerInterval   float64 `json:"odometer_interval"`
	TimeIntervalMonths int     `json:"time_interval_months"`
}

// IntervalsRequest is the input of UpdateReminder. Zero values keep the
// current interval.
type IntervalsRequest struct {
	OdometerInterval   float64 `json:"odometer_interval"`
	TimeIntervalMonths int     `json:"time_interval_months"`
}

// AddReminder starts tracking a service type on a vehicle, counting from
// the vehicle's current odometer and today.
func (l *Ledger) AddReminder(ctx context.Context, caller Caller, vehicleID primitive.ObjectID, req AddReminderRequest) (models.ServiceReminder, error) {
	serviceType := strings.TrimSpace(req.Type)
	if serviceType == "" {
		return models.ServiceReminder{}, invalid("reminder type is required", "type")
	}
	if req.OdometerInterval < 0 || req.TimeIntervalMonths < 0 {
		return models.ServiceReminder{}, invalid("intervals must not be negative", "odometer_interval", "time_interval_months")
	}
	if _, err := l.ownedVehicle(ctx, caller, vehicleID); err != nil {
		return models.ServiceReminder{}, err
	}

	var added models.ServiceReminder
	_, err := l.mutateVehicle(ctx, vehicleID, func(v *models.Vehicle) (bool, error) {
		var err error
		added, err = v.AddReminder(models.ServiceReminder{
			Type:                serviceType,
			OdometerInterval:    req.OdometerInterval,
			TimeIntervalMonths:  req.TimeIntervalMonths,
			LastServiceOdometer: v.Odometer,
			LastServiceDate:     l.now(),
			IsEnabled:           true,
		})
		if errors.Is(err, models.ErrReminderExists) {
			return false, &ValidationError{Fields: []string{"type"}, Message: err.Error(), Err: err}
		}
		return err == nil, err
	})
	if err != nil {
		return models.ServiceReminder{}, err
	}
	return added, nil
}

// UpdateReminder changes the intervals of a reminder.
func (l *Ledger) UpdateReminder(ctx context.Context, caller Caller, vehicleID, reminderID primitive.ObjectID, req IntervalsRequest) (models.ServiceReminder, error) {
	if req.OdometerInterval < 0 || req.TimeIntervalMonths < 0 {
		return models.ServiceReminder{}, invalid("intervals must not be negative", "odometer_interval", "time_interval_months")
	}
	return l.mutateReminder(ctx, caller, vehicleID, reminderID, func(v *models.Vehicle) error {
		return v.SetIntervals(reminderID, req.OdometerInterval, req.TimeIntervalMonths)
	})
}

// ToggleReminder flips a reminder between enabled and disabled. Reminders
// are never deleted, so history survives a disable.
func (l *Ledger) ToggleReminder(ctx context.Context, caller Caller, vehicleID, reminderID primitive.ObjectID) (models.ServiceReminder, error) {
	return l.mutateReminder(ctx, caller, vehicleID, reminderID, func(v *models.Vehicle) error {
		r, ok := v.Reminder(reminderID)
		if !ok {
			return models.ErrReminderNotFound
		}
		return v.SetEnabled(reminderID, !r.IsEnabled)
	})
}

func (l *Ledger) mutateReminder(ctx context.Context, caller Caller, vehicleID, reminderID primitive.ObjectID, fn func(v *models.Vehicle) error) (models.ServiceReminder, error) {
	if _, err := l.ownedVehicle(ctx, caller, vehicleID); err != nil {
		return models.ServiceReminder{}, err
	}
	v, err := l.mutateVehicle(ctx, vehicleID, func(v *models.Vehicle) (bool, error) {
		if err := fn(v); err != nil {
			return false, err
		}
		return true, nil
	})
	if errors.Is(err, models.ErrReminderNotFound) {
		return models.ServiceReminder{}, fmt.Errorf("reminder %s: %w", reminderID.Hex(), ErrNotFound)
	}
	if err != nil {
		return models.ServiceReminder{}, err
	}
	r, _ := v.Reminder(reminderID)
	return r, nil
}

// ListReminders returns every reminder of a vehicle, disabled ones included.
func (l *Ledger) ListReminders(ctx context.Context, caller Caller, vehicleID primitive.ObjectID) ([]models.ServiceReminder, error) {
	v, err := l.ownedVehicle(ctx, caller, vehicleID)
	if err != nil {
		return nil, err
	}
	reminders := v.Reminders()
	if reminders == nil {
		reminders = []models.ServiceReminder{}
	}
	return reminders, nil
}

// DueReminders returns the due and upcoming reminders of a vehicle.
func (l *Ledger) DueReminders(ctx context.Context, caller Caller, vehicleID primitive.ObjectID) ([]ReminderEvaluation, error) {
	v, err := l.ownedVehicle(ctx, caller, vehicleID)
	if err != nil {
		return nil, err
	}
	return DueReminders(v, l.now()), nil
}
