package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/models"
	"github.com/ukydev/fuelscope/internal/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const efficiencyDropMessage = "Significant drop detected! Your fuel efficiency has dropped by more than 20% compared to your recent average."

// ExpenseInput carries the caller-supplied fields of an expense. Odometer and
// total cost are pointers so that absent values can be told from zero.
type ExpenseInput struct {
	Type              models.Category        `json:"type"`
	FuelDetails       *models.FuelDetails    `json:"fuel_details,omitempty"`
	ServiceDetails    *models.ServiceDetails `json:"service_details,omitempty"`
	RecurringInterval string                 `json:"recurring_interval,omitempty"`
	Odometer          *float64               `json:"odometer"`
	TotalCost         *float64               `json:"total_cost"`
	Date              time.Time              `json:"date"`
	Notes             string                 `json:"notes,omitempty"`
	AttachmentURL     string                 `json:"attachment_url,omitempty"`
}

// AddExpenseRequest is the input of AddExpense.
type AddExpenseRequest struct {
	ExpenseInput
	VehicleID primitive.ObjectID `json:"vehicle_id"`
	ForceAdd  bool               `json:"force_add"`
	Reminder  *ReminderRequest   `json:"reminder,omitempty"`
}

// UpdateExpenseRequest is the input of UpdateExpense.
type UpdateExpenseRequest struct {
	ExpenseInput
	Reminder *ReminderRequest `json:"reminder,omitempty"`
}

// ServiceAlert reports a reminder that is due after a write.
type ServiceAlert struct {
	ReminderID primitive.ObjectID `json:"reminder_id"`
	Type       string             `json:"type"`
	Trigger    Trigger            `json:"trigger"`
	Message    string             `json:"message"`
}

// AddResult is the outcome of AddExpense. On conflict Expense is the
// existing active record and nothing was written.
type AddResult struct {
	Outcome       Outcome           `json:"outcome"`
	Expense       *models.Expense   `json:"expense"`
	Efficiency    *EfficiencyReport `json:"efficiency,omitempty"`
	Alert         string            `json:"alert,omitempty"`
	ServiceAlerts []ServiceAlert    `json:"service_alerts"`
}

// build validates in and returns the expense it describes.
func (in ExpenseInput) build() (*models.Expense, error) {
	e := &models.Expense{
		Type:              models.Category(strings.TrimSpace(string(in.Type))),
		FuelDetails:       in.FuelDetails,
		ServiceDetails:    in.ServiceDetails,
		RecurringInterval: in.RecurringInterval,
		Date:              in.Date,
		Notes:             in.Notes,
		AttachmentURL:     in.AttachmentURL,
	}
	if in.Odometer != nil {
		e.Odometer = *in.Odometer
	}
	if in.TotalCost != nil {
		e.TotalCost = *in.TotalCost
	}
	if e.FuelDetails != nil {
		fd := *e.FuelDetails
		e.FuelDetails = &fd
	}
	if e.ServiceDetails != nil {
		sd := *e.ServiceDetails
		sd.ServiceType = strings.TrimSpace(sd.ServiceType)
		e.ServiceDetails = &sd
	}
	e.Normalize()

	if !e.Type.Valid() {
		return nil, invalid(fmt.Sprintf("unknown expense type %q", in.Type), models.ColType)
	}

	// fuel volume is derived from cost and unit price
	if e.Type == models.CategoryFuel && e.FuelDetails != nil && e.FuelDetails.PricePerLiter > 0 {
		e.FuelDetails.Liters = math.Round(e.TotalCost/e.FuelDetails.PricePerLiter*1000) / 1000
	}

	var missing []string
	if in.Odometer == nil {
		missing = append(missing, models.ColOdometer)
	}
	if in.TotalCost == nil {
		missing = append(missing, models.ColTotalCost)
	}
	for _, col := range e.MissingFields() {
		if col == models.ColLiters {
			// liters is derived; it is only missing because an input is
			continue
		}
		missing = append(missing, col)
	}
	if len(missing) > 0 {
		return nil, invalid(fmt.Sprintf("missing required fields for %s expense", e.Type), missing...)
	}
	if e.Odometer < 0 {
		return nil, invalid("odometer must not be negative", models.ColOdometer)
	}
	if e.TotalCost <= 0 {
		return nil, invalid("total cost must be positive", models.ColTotalCost)
	}
	return e, nil
}

// AddExpense validates and records an expense for one of the caller's
// vehicles. Equivalent active records yield a conflict unless ForceAdd is
// set; equivalent soft-deleted ones are restored. Accepted writes advance
// the vehicle odometer, update the service reminder when requested, and run
// the efficiency analysis and due evaluation.
func (l *Ledger) AddExpense(ctx context.Context, caller Caller, req AddExpenseRequest) (AddResult, error) {
	candidate, err := req.build()
	if err != nil {
		return AddResult{}, err
	}
	if _, err := l.ownedVehicle(ctx, caller, req.VehicleID); err != nil {
		return AddResult{}, err
	}
	candidate.UserID = caller.UserID
	candidate.VehicleID = req.VehicleID

	rec, err := l.reconciler.Reconcile(ctx, candidate, req.ForceAdd)
	if err != nil {
		return AddResult{}, err
	}
	if rec.Outcome == OutcomeConflict {
		return AddResult{Outcome: OutcomeConflict, Expense: rec.Expense, ServiceAlerts: []ServiceAlert{}}, nil
	}
	expense := rec.Expense

	newer, err := l.newerService(ctx, expense, req.Reminder)
	var vehicle *models.Vehicle
	if err == nil {
		vehicle, err = l.mutateVehicle(ctx, req.VehicleID, func(v *models.Vehicle) (bool, error) {
			advanced := v.AdvanceOdometer(expense.Odometer)
			tracked, err := applyServiceWrite(v, expense, newer, req.Reminder)
			return advanced || tracked, err
		})
	}
	if err != nil {
		if undoErr := l.reconciler.Undo(ctx, rec); undoErr != nil {
			l.log.WithError(undoErr).WithField("expense_id", expense.ID.Hex()).Error("Failed to revert expense write")
		}
		return AddResult{}, err
	}
	return l.completeAdd(ctx, rec, vehicle), nil
}

// completeAdd runs the efficiency analysis and due evaluation after an
// accepted write and publishes the resulting alerts.
func (l *Ledger) completeAdd(ctx context.Context, rec Reconciliation, vehicle *models.Vehicle) AddResult {
	expense := rec.Expense
	result := AddResult{Outcome: rec.Outcome, Expense: expense}
	var alerts []notify.Alert

	if expense.Type == models.CategoryFuel {
		report, err := l.analyzeFuel(ctx, expense)
		if err != nil {
			l.log.WithError(err).WithField("expense_id", expense.ID.Hex()).Warn("Efficiency analysis failed")
		} else if report != nil {
			result.Efficiency = report
			if report.Drop {
				result.Alert = efficiencyDropMessage
				alerts = append(alerts, notify.Alert{
					Kind:      notify.KindEfficiencyDrop,
					VehicleID: vehicle.ID.Hex(),
					Message:   efficiencyDropMessage,
					Details: map[string]interface{}{
						"expense_id": expense.ID.Hex(),
						"baseline":   report.Baseline,
						"current":    report.Current,
					},
					CreatedAt: l.now(),
				})
			}
		}
	}

	result.ServiceAlerts = l.serviceAlerts(vehicle)
	for _, sa := range result.ServiceAlerts {
		alerts = append(alerts, notify.Alert{
			Kind:      notify.KindServiceDue,
			VehicleID: vehicle.ID.Hex(),
			Message:   sa.Message,
			Details: map[string]interface{}{
				"reminder_id": sa.ReminderID.Hex(),
				"type":        sa.Type,
				"trigger":     sa.Trigger,
			},
			CreatedAt: l.now(),
		})
	}
	l.publish(ctx, alerts)

	l.log.WithFields(logrus.Fields{
		"expense_id": expense.ID.Hex(),
		"vehicle_id": vehicle.ID.Hex(),
		"outcome":    rec.Outcome,
		"type":       expense.Type,
	}).Info("Expense recorded")
	return result
}

// newerService returns the latest surviving service of e's type other than
// e itself, when e is a tracked service write.
func (l *Ledger) newerService(ctx context.Context, e *models.Expense, req *ReminderRequest) (*models.Expense, error) {
	if e.Type != models.CategoryService || req == nil || e.IsDeleted {
		return nil, nil
	}
	return l.latestService(ctx, e.VehicleID, e.ServiceType(), e.ID)
}

// analyzeFuel runs the efficiency analysis for a fuel expense. It returns
// nil when there is not enough history.
func (l *Ledger) analyzeFuel(ctx context.Context, e *models.Expense) (*EfficiencyReport, error) {
	prior, err := l.expenses.RecentFuel(ctx, e.VehicleID, e.ID, EfficiencyWindow)
	if err != nil {
		return nil, fmt.Errorf("recent fuel entries: %w", err)
	}
	report, ok := AnalyzeEfficiency(e, prior)
	if !ok {
		return nil, nil
	}
	return &report, nil
}

// serviceAlerts lists one alert per fired trigger of each enabled reminder.
func (l *Ledger) serviceAlerts(v *models.Vehicle) []ServiceAlert {
	alerts := []ServiceAlert{}
	now := l.now()
	for _, r := range v.Reminders() {
		eval := EvaluateReminder(r, v.Odometer, now)
		for _, trigger := range eval.Triggers {
			label := "Odometer"
			if trigger == TriggerTime {
				label = "Time-based"
			}
			alerts = append(alerts, ServiceAlert{
				ReminderID: r.ID,
				Type:       r.Type,
				Trigger:    trigger,
				Message:    fmt.Sprintf("Service due: %s (%s)", r.Type, label),
			})
		}
	}
	return alerts
}

// ownedExpense loads an active expense on one of the caller's vehicles.
func (l *Ledger) ownedExpense(ctx context.Context, caller Caller, id primitive.ObjectID) (*models.Expense, error) {
	e, err := l.expenses.FindExpenseByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("expense %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find expense %s: %w", id.Hex(), err)
	}
	if e.IsDeleted {
		return nil, fmt.Errorf("expense %s: %w", id.Hex(), ErrNotFound)
	}
	if e.UserID != caller.UserID {
		return nil, fmt.Errorf("expense %s: %w", id.Hex(), ErrForbidden)
	}
	if _, err := l.ownedVehicle(ctx, caller, e.VehicleID); err != nil {
		return nil, err
	}
	return e, nil
}

// latestService returns the newest surviving service of serviceType, or nil.
func (l *Ledger) latestService(ctx context.Context, vehicleID primitive.ObjectID, serviceType string, excludeID primitive.ObjectID) (*models.Expense, error) {
	e, err := l.expenses.LatestService(ctx, vehicleID, serviceType, excludeID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest %q service: %w", serviceType, err)
	}
	return e, nil
}

// DeleteExpense soft-deletes an expense. Deleting a service expense moves
// its reminder back to the newest surviving service of the same type, or
// disables it when none survives.
func (l *Ledger) DeleteExpense(ctx context.Context, caller Caller, id primitive.ObjectID) (*models.Expense, error) {
	e, err := l.ownedExpense(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	previous := *e

	now := l.now()
	deletedBy := caller.UserID
	e.IsDeleted = true
	e.DeletedBy = &deletedBy
	e.DeletedAt = &now
	if err := l.expenses.ReplaceExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("soft-delete expense %s: %w", id.Hex(), err)
	}

	if e.Type == models.CategoryService {
		serviceType := e.ServiceType()
		survivor, err := l.latestService(ctx, e.VehicleID, serviceType, e.ID)
		if err == nil {
			_, err = l.mutateVehicle(ctx, e.VehicleID, func(v *models.Vehicle) (bool, error) {
				return rollbackService(v, serviceType, e, survivor)
			})
		}
		if err != nil {
			if undoErr := l.expenses.ReplaceExpense(ctx, &previous); undoErr != nil {
				l.log.WithError(undoErr).WithField("expense_id", id.Hex()).Error("Failed to revert expense delete")
			}
			return nil, err
		}
	}

	l.log.WithFields(logrus.Fields{
		"expense_id": id.Hex(),
		"vehicle_id": e.VehicleID.Hex(),
	}).Info("Expense marked as deleted")
	return e, nil
}

// UpdateExpense rewrites an active expense. The vehicle odometer advances
// if needed and the reminders of the old and new service types are brought
// back in line with the surviving history.
func (l *Ledger) UpdateExpense(ctx context.Context, caller Caller, id primitive.ObjectID, req UpdateExpenseRequest) (*models.Expense, error) {
	updated, err := req.build()
	if err != nil {
		return nil, err
	}
	current, err := l.ownedExpense(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	previous := *current

	updated.ID = current.ID
	updated.UserID = current.UserID
	updated.VehicleID = current.VehicleID
	updated.CreatedAt = current.CreatedAt
	if err := l.expenses.ReplaceExpense(ctx, updated); err != nil {
		return nil, fmt.Errorf("update expense %s: %w", id.Hex(), err)
	}

	// reminders of both the old and the new service type may be affected
	type resync struct {
		serviceType string
		survivor    *models.Expense
	}
	var resyncs []resync
	for _, e := range []*models.Expense{&previous, updated} {
		if e.Type != models.CategoryService {
			continue
		}
		if len(resyncs) > 0 && strings.EqualFold(resyncs[0].serviceType, e.ServiceType()) {
			continue
		}
		survivor, err := l.latestService(ctx, e.VehicleID, e.ServiceType(), primitive.NilObjectID)
		if err != nil {
			l.revertUpdate(ctx, &previous)
			return nil, err
		}
		resyncs = append(resyncs, resync{serviceType: e.ServiceType(), survivor: survivor})
	}
	newer, err := l.newerService(ctx, updated, req.Reminder)
	if err != nil {
		l.revertUpdate(ctx, &previous)
		return nil, err
	}

	_, err = l.mutateVehicle(ctx, updated.VehicleID, func(v *models.Vehicle) (bool, error) {
		changed := v.AdvanceOdometer(updated.Odometer)
		for _, rs := range resyncs {
			rolled, err := rollbackService(v, rs.serviceType, &previous, rs.survivor)
			if err != nil {
				return false, err
			}
			changed = changed || rolled
		}
		tracked, err := applyServiceWrite(v, updated, newer, req.Reminder)
		return changed || tracked, err
	})
	if err != nil {
		l.revertUpdate(ctx, &previous)
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"expense_id": id.Hex(),
		"vehicle_id": updated.VehicleID.Hex(),
	}).Info("Expense updated")
	return updated, nil
}

func (l *Ledger) revertUpdate(ctx context.Context, previous *models.Expense) {
	if err := l.expenses.ReplaceExpense(ctx, previous); err != nil {
		l.log.WithError(err).WithField("expense_id", previous.ID.Hex()).Error("Failed to revert expense update")
	}
}

// ListExpenses returns the active expenses of one of the caller's vehicles,
// oldest first.
func (l *Ledger) ListExpenses(ctx context.Context, caller Caller, vehicleID primitive.ObjectID) ([]models.Expense, error) {
	if _, err := l.ownedVehicle(ctx, caller, vehicleID); err != nil {
		return nil, err
	}
	expenses, err := l.expenses.ListActive(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}
