package ledger

import (
	"math"
	"strings"
	"time"

	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// UpcomingDistance is how close, in km, a reminder counts as upcoming.
	UpcomingDistance = 1000.0
	// UpcomingDays is how many whole days before its due date a reminder
	// counts as upcoming.
	UpcomingDays = 30
)

// ReminderRequest asks a service write to track its type. Zero intervals
// leave the current setting unchanged.
type ReminderRequest struct {
	OdometerInterval   float64 `json:"odometer_interval"`
	TimeIntervalMonths int     `json:"time_interval_months"`
	IsEnabled          bool    `json:"is_enabled"`
}

// ReminderStatus is the due state of an enabled reminder.
type ReminderStatus string

const (
	StatusDue      ReminderStatus = "due"
	StatusUpcoming ReminderStatus = "upcoming"
)

// Trigger names the condition that made a reminder due.
type Trigger string

const (
	TriggerOdometer Trigger = "odometer"
	TriggerTime     Trigger = "time"
)

// ReminderEvaluation is the computed state of one reminder. Fields of a
// trigger with a zero interval are omitted; that trigger is not tracked.
type ReminderEvaluation struct {
	ReminderID   primitive.ObjectID `json:"reminder_id"`
	Type         string             `json:"type"`
	Status       ReminderStatus     `json:"status,omitempty"`
	Triggers     []Trigger          `json:"triggers,omitempty"`
	DueOdometer  *float64           `json:"due_odometer,omitempty"`
	KmUntilDue   *float64           `json:"km_until_due,omitempty"`
	DueDate      *time.Time         `json:"due_date,omitempty"`
	DaysUntilDue *int               `json:"days_until_due,omitempty"`
}

// EvaluateReminder computes the due state of r for a vehicle at odometer on
// now. Either trigger makes the reminder due on its own.
func EvaluateReminder(r models.ServiceReminder, odometer float64, now time.Time) ReminderEvaluation {
	eval := ReminderEvaluation{ReminderID: r.ID, Type: r.Type}
	if !r.IsEnabled {
		return eval
	}

	upcoming := false
	if r.OdometerInterval > 0 {
		dueOdometer := r.DueOdometer()
		remaining := dueOdometer - odometer
		if remaining <= 0 {
			eval.Triggers = append(eval.Triggers, TriggerOdometer)
		} else if remaining <= UpcomingDistance {
			upcoming = true
		}
		eval.DueOdometer = &dueOdometer
		clamped := math.Max(remaining, 0)
		eval.KmUntilDue = &clamped
	}
	if r.TimeIntervalMonths > 0 {
		dueDate := r.DueDate()
		days := int(math.Floor(dueDate.Sub(now).Hours() / 24))
		if !now.Before(dueDate) {
			eval.Triggers = append(eval.Triggers, TriggerTime)
			days = 0
		} else if days <= UpcomingDays {
			upcoming = true
		}
		eval.DueDate = &dueDate
		eval.DaysUntilDue = &days
	}

	switch {
	case len(eval.Triggers) > 0:
		eval.Status = StatusDue
	case upcoming:
		eval.Status = StatusUpcoming
	}
	return eval
}

// DueReminders returns the due and upcoming reminders of v, in reminder
// order.
func DueReminders(v *models.Vehicle, now time.Time) []ReminderEvaluation {
	out := []ReminderEvaluation{}
	for _, r := range v.Reminders() {
		if eval := EvaluateReminder(r, v.Odometer, now); eval.Status != "" {
			out = append(out, eval)
		}
	}
	return out
}

// applyServiceWrite records a service expense on the reminder of its type,
// creating one when req asks for enabled tracking. The reminder takes the
// odometer and date of e unless newer, the latest other surviving service
// of the same type, is dated after it. It reports whether v changed.
func applyServiceWrite(v *models.Vehicle, e, newer *models.Expense, req *ReminderRequest) (bool, error) {
	if e.Type != models.CategoryService || req == nil || e.IsDeleted {
		return false, nil
	}
	serviceType := strings.TrimSpace(e.ServiceType())
	baseline := e
	if newer != nil && newer.Date.After(e.Date) {
		baseline = newer
	}

	r, ok := v.ReminderFor(serviceType)
	if !ok {
		if !req.IsEnabled {
			return false, nil
		}
		_, err := v.AddReminder(models.ServiceReminder{
			Type:                serviceType,
			OdometerInterval:    math.Max(req.OdometerInterval, 0),
			TimeIntervalMonths:  max(req.TimeIntervalMonths, 0),
			LastServiceOdometer: baseline.Odometer,
			LastServiceDate:     baseline.Date,
			IsEnabled:           true,
		})
		return err == nil, err
	}

	if req.IsEnabled && !r.IsEnabled {
		if err := v.SetEnabled(r.ID, true); err != nil {
			return false, err
		}
	}
	if err := v.SetLastService(r.ID, baseline.Odometer, baseline.Date); err != nil {
		return false, err
	}
	if err := v.SetIntervals(r.ID, req.OdometerInterval, req.TimeIntervalMonths); err != nil {
		return false, err
	}
	return true, nil
}

// rollbackService keeps the reminder of serviceType pointing at the newest
// surviving service after stale stopped counting. A nil survivor disables
// the reminder; it is never removed. It reports whether v changed.
func rollbackService(v *models.Vehicle, serviceType string, stale, survivor *models.Expense) (bool, error) {
	r, ok := v.ReminderFor(serviceType)
	if !ok {
		return false, nil
	}
	if survivor == nil {
		if !r.IsEnabled {
			return false, nil
		}
		return true, v.SetEnabled(r.ID, false)
	}

	reflectsStale := stale != nil &&
		r.LastServiceDate.Equal(stale.Date) && r.LastServiceOdometer == stale.Odometer
	if survivor.Date.After(r.LastServiceDate) || reflectsStale {
		if r.LastServiceDate.Equal(survivor.Date) && r.LastServiceOdometer == survivor.Odometer {
			return false, nil
		}
		return true, v.SetLastService(r.ID, survivor.Odometer, survivor.Date)
	}
	return false, nil
}
