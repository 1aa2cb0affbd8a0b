package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func oilChange(lastOdometer float64, lastDate time.Time) models.ServiceReminder {
	return models.ServiceReminder{
		ID:                  primitive.NewObjectID(),
		Type:                "Oil Change",
		OdometerInterval:    5000,
		TimeIntervalMonths:  6,
		LastServiceOdometer: lastOdometer,
		LastServiceDate:     lastDate,
		IsEnabled:           true,
	}
}

func TestEvaluateReminder_EitherTriggerIsEnough(t *testing.T) {
	recent := testNow.AddDate(0, -1, 0)

	byDistance := EvaluateReminder(oilChange(10000, recent), 15000, testNow)
	assert.Equal(t, StatusDue, byDistance.Status)
	assert.Equal(t, []Trigger{TriggerOdometer}, byDistance.Triggers)
	assert.Equal(t, 0.0, *byDistance.KmUntilDue)

	byTime := EvaluateReminder(oilChange(10000, testNow.AddDate(0, -7, 0)), 11000, testNow)
	assert.Equal(t, StatusDue, byTime.Status)
	assert.Equal(t, []Trigger{TriggerTime}, byTime.Triggers)
	assert.Equal(t, 0, *byTime.DaysUntilDue)
	assert.Equal(t, 4000.0, *byTime.KmUntilDue)

	both := EvaluateReminder(oilChange(10000, testNow.AddDate(-1, 0, 0)), 20000, testNow)
	assert.Equal(t, []Trigger{TriggerOdometer, TriggerTime}, both.Triggers)

	neither := EvaluateReminder(oilChange(10000, recent), 11000, testNow)
	assert.Empty(t, neither.Status)
}

func TestEvaluateReminder_Upcoming(t *testing.T) {
	r := oilChange(10000, testNow.AddDate(0, -1, 0))

	near := EvaluateReminder(r, 14200, testNow)
	assert.Equal(t, StatusUpcoming, near.Status)
	assert.Equal(t, 800.0, *near.KmUntilDue)
	assert.Equal(t, 15000.0, *near.DueOdometer)

	// due date is last service plus calendar months
	soon := EvaluateReminder(oilChange(10000, time.Date(2023, time.December, 20, 12, 0, 0, 0, time.UTC)), 10000, testNow)
	assert.Equal(t, StatusUpcoming, soon.Status)
	assert.True(t, soon.DueDate.Equal(time.Date(2024, time.June, 20, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 19, *soon.DaysUntilDue)
}

func TestEvaluateReminder_UpcomingCountsWholeDays(t *testing.T) {
	// 30 days and 12 hours out
	inside := EvaluateReminder(oilChange(10000, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)), 10000, testNow)
	assert.Equal(t, 30, *inside.DaysUntilDue)
	assert.Equal(t, StatusUpcoming, inside.Status)

	// 31 days and 12 hours out
	outside := EvaluateReminder(oilChange(10000, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)), 10000, testNow)
	assert.Equal(t, 31, *outside.DaysUntilDue)
	assert.Empty(t, outside.Status)
}

func TestApplyServiceWrite(t *testing.T) {
	v := &models.Vehicle{Odometer: 20000}
	seeded, err := v.AddReminder(oilChange(20000, testNow))
	require.NoError(t, err)

	e := &models.Expense{
		Type:           models.CategoryService,
		ServiceDetails: &models.ServiceDetails{ServiceType: "oil change"},
		Odometer:       19000,
		Date:           testNow.AddDate(0, 0, -7),
	}
	changed, err := applyServiceWrite(v, e, nil, &ReminderRequest{})
	require.NoError(t, err)
	assert.True(t, changed)
	r, _ := v.Reminder(seeded.ID)
	assert.Equal(t, 19000.0, r.LastServiceOdometer)
	assert.True(t, r.LastServiceDate.Equal(e.Date))

	newer := &models.Expense{Odometer: 19500, Date: testNow.AddDate(0, 0, -2)}
	_, err = applyServiceWrite(v, e, newer, &ReminderRequest{})
	require.NoError(t, err)
	r, _ = v.Reminder(seeded.ID)
	assert.Equal(t, 19500.0, r.LastServiceOdometer)

	older := &models.Expense{Odometer: 18000, Date: testNow.AddDate(0, -1, 0)}
	_, err = applyServiceWrite(v, e, older, &ReminderRequest{})
	require.NoError(t, err)
	r, _ = v.Reminder(seeded.ID)
	assert.Equal(t, 19000.0, r.LastServiceOdometer)
}

func TestRollbackService(t *testing.T) {
	v := &models.Vehicle{}
	changed, err := rollbackService(v, "Oil Change", nil, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	seeded, err := v.AddReminder(oilChange(15000, testNow))
	require.NoError(t, err)
	stale := &models.Expense{Odometer: 15000, Date: testNow}
	survivor := &models.Expense{Odometer: 10000, Date: testNow.AddDate(0, -2, 0)}

	changed, err = rollbackService(v, "oil change", stale, survivor)
	require.NoError(t, err)
	assert.True(t, changed)
	r, _ := v.Reminder(seeded.ID)
	assert.Equal(t, 10000.0, r.LastServiceOdometer)

	changed, err = rollbackService(v, "Oil Change", survivor, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	r, _ = v.Reminder(seeded.ID)
	assert.False(t, r.IsEnabled)
	assert.Equal(t, 10000.0, r.LastServiceOdometer)
}

func TestEvaluateReminder_ZeroIntervalIsUntracked(t *testing.T) {
	r := oilChange(10000, testNow.AddDate(-5, 0, 0))
	r.TimeIntervalMonths = 0

	eval := EvaluateReminder(r, 10100, testNow)
	assert.Empty(t, eval.Status)
	assert.Nil(t, eval.DueDate)
	assert.Nil(t, eval.DaysUntilDue)
	require.NotNil(t, eval.DueOdometer)
}

func TestEvaluateReminder_Disabled(t *testing.T) {
	r := oilChange(0, testNow.AddDate(-5, 0, 0))
	r.IsEnabled = false
	assert.Empty(t, EvaluateReminder(r, 100000, testNow).Status)
}

func TestReminderOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vehicle(t, 14500)

	added, err := f.ledger.AddReminder(ctx, f.caller, v.ID, AddReminderRequest{Type: "Oil Change", OdometerInterval: 1000, TimeIntervalMonths: 6})
	require.NoError(t, err)
	assert.Equal(t, 14500.0, added.LastServiceOdometer)
	assert.True(t, added.LastServiceDate.Equal(testNow))
	assert.True(t, added.IsEnabled)

	_, err = f.ledger.AddReminder(ctx, f.caller, v.ID, AddReminderRequest{Type: "oil change"})
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, models.ErrReminderExists)

	_, err = f.ledger.AddReminder(ctx, f.caller, v.ID, AddReminderRequest{Type: " "})
	assert.True(t, IsValidation(err))

	due, err := f.ledger.DueReminders(ctx, f.caller, v.ID)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, StatusUpcoming, due[0].Status)

	updated, err := f.ledger.UpdateReminder(ctx, f.caller, v.ID, added.ID, IntervalsRequest{OdometerInterval: 8000})
	require.NoError(t, err)
	assert.Equal(t, 8000.0, updated.OdometerInterval)
	assert.Equal(t, 6, updated.TimeIntervalMonths)

	due, err = f.ledger.DueReminders(ctx, f.caller, v.ID)
	require.NoError(t, err)
	assert.Empty(t, due)

	toggled, err := f.ledger.ToggleReminder(ctx, f.caller, v.ID, added.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsEnabled)
	toggled, err = f.ledger.ToggleReminder(ctx, f.caller, v.ID, added.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsEnabled)

	_, err = f.ledger.ToggleReminder(ctx, f.caller, v.ID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.ledger.UpdateReminder(ctx, f.caller, v.ID, primitive.NewObjectID(), IntervalsRequest{})
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := f.ledger.ListReminders(ctx, f.caller, v.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListReminders_EmptyVehicle(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle(t, 0)

	all, err := f.ledger.ListReminders(context.Background(), f.caller, v.ID)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}
