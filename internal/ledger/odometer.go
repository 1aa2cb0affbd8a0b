package ledger

import (
	"context"
	"fmt"

	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/models"
)

// OdometerGuard keeps a vehicle's odometer monotonic across its lifetime and
// its expense history.
type OdometerGuard struct {
	expenses db.ExpenseCollection
}

// ValidateAdvance rejects a vehicle-level reading below the current odometer
// or below the highest odometer of the vehicle's active expenses.
func (g OdometerGuard) ValidateAdvance(ctx context.Context, v *models.Vehicle, reading float64) error {
	if reading < 0 {
		return invalid("odometer must not be negative", "odometer")
	}
	if reading < v.Odometer {
		return invalid(fmt.Sprintf("odometer must be >= current reading (%g)", v.Odometer), "odometer")
	}
	latest, ok, err := g.expenses.MaxOdometer(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("latest expense odometer: %w", err)
	}
	if ok && reading < latest {
		return invalid(fmt.Sprintf("odometer must be >= latest recorded (%g)", latest), "odometer")
	}
	return nil
}
