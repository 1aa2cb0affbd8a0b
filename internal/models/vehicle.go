package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrReminderNotFound = errors.New("service reminder not found")
	ErrReminderExists   = errors.New("service reminder already exists for this type")
)

// ServiceReminder tracks one maintenance type of a vehicle with independent
// distance and time triggers.
type ServiceReminder struct {
	ID                  primitive.ObjectID `json:"id" bson:"_id"`
	Type                string             `json:"type" bson:"type"` // e.g. "Oil Change", "Tire Rotation"
	OdometerInterval    float64            `json:"odometer_interval" bson:"odometer_interval"`
	TimeIntervalMonths  int                `json:"time_interval_months" bson:"time_interval_months"`
	LastServiceOdometer float64            `json:"last_service_odometer" bson:"last_service_odometer"`
	LastServiceDate     time.Time          `json:"last_service_date" bson:"last_service_date"`
	IsEnabled           bool               `json:"is_enabled" bson:"is_enabled"`
}

// DueOdometer is the reading at which the distance trigger fires.
func (r ServiceReminder) DueOdometer() float64 {
	return r.LastServiceOdometer + r.OdometerInterval
}

// DueDate is the last service date plus the interval in calendar months.
func (r ServiceReminder) DueDate() time.Time {
	return r.LastServiceDate.AddDate(0, r.TimeIntervalMonths, 0)
}

// Vehicle is a tracked vehicle. It owns its service reminders; they are only
// reachable through methods that never remove one.
type Vehicle struct {
	ID        primitive.ObjectID
	UserID    primitive.ObjectID
	Name      string
	Odometer  float64 // in kilometers
	CreatedAt time.Time
	Version   int64

	reminders []ServiceReminder
}

type vehicleDocument struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID `bson:"user_id" json:"user_id"`
	Name             string             `bson:"name" json:"name"`
	Odometer         float64            `bson:"odometer" json:"odometer"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	Version          int64              `bson:"version" json:"version"`
	ServiceReminders []ServiceReminder  `bson:"service_reminders" json:"service_reminders"`
}

func (v Vehicle) document() vehicleDocument {
	reminders := v.Reminders()
	if reminders == nil {
		reminders = []ServiceReminder{}
	}
	return vehicleDocument{
		ID:               v.ID,
		UserID:           v.UserID,
		Name:             v.Name,
		Odometer:         v.Odometer,
		CreatedAt:        v.CreatedAt,
		Version:          v.Version,
		ServiceReminders: reminders,
	}
}

func (v *Vehicle) load(d vehicleDocument) {
	v.ID = d.ID
	v.UserID = d.UserID
	v.Name = d.Name
	v.Odometer = d.Odometer
	v.CreatedAt = d.CreatedAt
	v.Version = d.Version
	v.reminders = d.ServiceReminders
}

// MarshalBSON implements bson.Marshaler.
func (v Vehicle) MarshalBSON() ([]byte, error) {
	return bson.Marshal(v.document())
}

// UnmarshalBSON implements bson.Unmarshaler.
func (v *Vehicle) UnmarshalBSON(data []byte) error {
	var d vehicleDocument
	if err := bson.Unmarshal(data, &d); err != nil {
		return err
	}
	v.load(d)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Vehicle) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.document())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vehicle) UnmarshalJSON(data []byte) error {
	var d vehicleDocument
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	v.load(d)
	return nil
}

// Clone returns a deep copy of v.
func (v *Vehicle) Clone() *Vehicle {
	c := *v
	c.reminders = v.Reminders()
	return &c
}

// AdvanceOdometer raises the stored odometer to reading when reading is
// higher and reports whether it did. The odometer never moves backward here.
func (v *Vehicle) AdvanceOdometer(reading float64) bool {
	if reading <= v.Odometer {
		return false
	}
	v.Odometer = reading
	return true
}

// Reminders returns a copy of the reminder set.
func (v *Vehicle) Reminders() []ServiceReminder {
	if v.reminders == nil {
		return nil
	}
	out := make([]ServiceReminder, len(v.reminders))
	copy(out, v.reminders)
	return out
}

// Reminder returns the reminder with the given id.
func (v *Vehicle) Reminder(id primitive.ObjectID) (ServiceReminder, bool) {
	if i := v.indexByID(id); i >= 0 {
		return v.reminders[i], true
	}
	return ServiceReminder{}, false
}

// ReminderFor returns the reminder tracking serviceType, compared
// case-insensitively.
func (v *Vehicle) ReminderFor(serviceType string) (ServiceReminder, bool) {
	if i := v.indexByType(serviceType); i >= 0 {
		return v.reminders[i], true
	}
	return ServiceReminder{}, false
}

// AddReminder appends r. A reminder for the same type must not exist yet.
func (v *Vehicle) AddReminder(r ServiceReminder) (ServiceReminder, error) {
	if v.indexByType(r.Type) >= 0 {
		return ServiceReminder{}, ErrReminderExists
	}
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	v.reminders = append(v.reminders, r)
	return r, nil
}

// SetLastService moves the reminder's baseline to the given service.
func (v *Vehicle) SetLastService(id primitive.ObjectID, odometer float64, date time.Time) error {
	i := v.indexByID(id)
	if i < 0 {
		return ErrReminderNotFound
	}
	v.reminders[i].LastServiceOdometer = odometer
	v.reminders[i].LastServiceDate = date
	return nil
}

// SetIntervals updates the intervals; non-positive values keep the current
// setting.
func (v *Vehicle) SetIntervals(id primitive.ObjectID, odometerInterval float64, months int) error {
	i := v.indexByID(id)
	if i < 0 {
		return ErrReminderNotFound
	}
	if odometerInterval > 0 {
		v.reminders[i].OdometerInterval = odometerInterval
	}
	if months > 0 {
		v.reminders[i].TimeIntervalMonths = months
	}
	return nil
}

// SetEnabled enables or disables a reminder. Disabled reminders are kept.
func (v *Vehicle) SetEnabled(id primitive.ObjectID, enabled bool) error {
	i := v.indexByID(id)
	if i < 0 {
		return ErrReminderNotFound
	}
	v.reminders[i].IsEnabled = enabled
	return nil
}

func (v *Vehicle) indexByID(id primitive.ObjectID) int {
	for i := range v.reminders {
		if v.reminders[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *Vehicle) indexByType(serviceType string) int {
	for i := range v.reminders {
		if strings.EqualFold(v.reminders[i].Type, serviceType) {
			return i
		}
	}
	return -1
}
