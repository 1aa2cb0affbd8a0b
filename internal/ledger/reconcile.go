package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/models"
)

// Outcome is the result of reconciling a candidate expense.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeRestored Outcome = "restored"
	OutcomeConflict Outcome = "conflict"
)

// Reconciliation describes what the reconciler did with a candidate.
type Reconciliation struct {
	Outcome Outcome
	// Expense is the stored record: the new one, the restored one, or the
	// existing active record on conflict.
	Expense *models.Expense

	previous *models.Expense // state before a restore
}

// Reconciler decides whether a candidate duplicates an active record,
// resurrects a soft-deleted one, or is new.
type Reconciler struct {
	expenses db.ExpenseCollection
}

// Reconcile persists candidate unless an equivalent active record exists and
// forceAdd is false. An equivalent soft-deleted record is restored in place.
func (r Reconciler) Reconcile(ctx context.Context, candidate *models.Expense, forceAdd bool) (Reconciliation, error) {
	key := candidate.Key()

	if !forceAdd {
		existing, err := r.expenses.FindEquivalent(ctx, key, false)
		switch {
		case err == nil:
			return Reconciliation{Outcome: OutcomeConflict, Expense: existing}, nil
		case !errors.Is(err, db.ErrNotFound):
			return Reconciliation{}, fmt.Errorf("find active duplicate: %w", err)
		}
	}

	deleted, err := r.expenses.FindEquivalent(ctx, key, true)
	switch {
	case err == nil:
		previous := *deleted
		restoreFrom(deleted, candidate)
		if err := r.expenses.ReplaceExpense(ctx, deleted); err != nil {
			return Reconciliation{}, fmt.Errorf("restore expense %s: %w", deleted.ID.Hex(), err)
		}
		return Reconciliation{Outcome: OutcomeRestored, Expense: deleted, previous: &previous}, nil
	case !errors.Is(err, db.ErrNotFound):
		return Reconciliation{}, fmt.Errorf("find deleted duplicate: %w", err)
	}

	if err := r.expenses.InsertExpense(ctx, candidate); err != nil {
		return Reconciliation{}, fmt.Errorf("insert expense: %w", err)
	}
	return Reconciliation{Outcome: OutcomeCreated, Expense: candidate}, nil
}

// Undo reverts a created or restored record. Used when the vehicle side of
// the write cannot be completed.
func (r Reconciler) Undo(ctx context.Context, rec Reconciliation) error {
	switch rec.Outcome {
	case OutcomeCreated:
		return r.expenses.DeleteExpense(ctx, rec.Expense.ID)
	case OutcomeRestored:
		return r.expenses.ReplaceExpense(ctx, rec.previous)
	}
	return nil
}

// restoreFrom reactivates dst and overwrites its mutable fields from src.
// Identity, owner and creation time are kept.
func restoreFrom(dst, src *models.Expense) {
	dst.IsDeleted = false
	dst.DeletedBy = nil
	dst.DeletedAt = nil
	dst.FuelDetails = src.FuelDetails
	dst.ServiceDetails = src.ServiceDetails
	dst.RecurringInterval = src.RecurringInterval
	dst.Odometer = src.Odometer
	dst.TotalCost = src.TotalCost
	dst.Date = src.Date
	dst.Notes = src.Notes
	dst.AttachmentURL = src.AttachmentURL
}
