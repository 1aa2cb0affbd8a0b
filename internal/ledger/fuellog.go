package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Columns of a fuel log exported by third-party fuel tracking apps.
const (
	fuelLogOdometer = "odometer"
	fuelLogPrice    = "price"
	fuelLogLitres   = "litres"
	fuelLogDate     = "fuelup_date"
	fuelLogNotes    = "notes"

	// ImportedFuelBrand marks fuel entries that came from a fuel log.
	ImportedFuelBrand = "imported"
)

var fuelLogRequired = []string{fuelLogOdometer, fuelLogPrice, fuelLogLitres, fuelLogDate}

var fuelLogDateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

// FuelLogResult summarizes a fuel log import.
type FuelLogResult struct {
	Imported          int        `json:"imported"`
	Restored          int        `json:"restored"`
	DuplicatesSkipped int        `json:"duplicatesSkipped"`
	UpdatedOdometer   float64    `json:"updatedOdometer"`
	Errors            []RowError `json:"errors"`
}

// ImportFuelLog imports fill-ups from a fuel log. A fill-up matching a
// stored fuel entry with the same odometer and cost on the same calendar
// day is a duplicate; a soft-deleted match is restored in place.
func (l *Ledger) ImportFuelLog(ctx context.Context, caller Caller, vehicleID primitive.ObjectID, r io.Reader) (FuelLogResult, error) {
	vehicle, err := l.ownedVehicle(ctx, caller, vehicleID)
	if err != nil {
		return FuelLogResult{}, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return FuelLogResult{}, headerError(fuelLogRequired)
	}
	if err != nil {
		return FuelLogResult{}, invalid(fmt.Sprintf("read csv header: %v", err))
	}
	index := columnIndex(header)
	var missing []string
	for _, col := range fuelLogRequired {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return FuelLogResult{}, headerError(missing)
	}

	result := FuelLogResult{Errors: []RowError{}, UpdatedOdometer: vehicle.Odometer}
	highest := vehicle.Odometer

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			result.Errors = append(result.Errors, RowError{Row: row, Message: parseErr.Err.Error()})
			continue
		}
		if err != nil {
			return result, fmt.Errorf("read fuel log row %d: %w", row, err)
		}

		e, rowErr := parseFuelLogRow(index, record, row)
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			continue
		}
		e.UserID = caller.UserID
		e.VehicleID = vehicleID

		existing, err := l.expenses.FindFuelOnDay(ctx, vehicleID, e.Odometer, e.TotalCost, e.Date)
		switch {
		case err == nil && existing.IsDeleted:
			restoreFrom(existing, e)
			if err := l.expenses.ReplaceExpense(ctx, existing); err != nil {
				return result, fmt.Errorf("restore row %d: %w", row, err)
			}
			result.Restored++
		case err == nil:
			result.DuplicatesSkipped++
			continue
		case errors.Is(err, db.ErrNotFound):
			if err := l.expenses.InsertExpense(ctx, e); err != nil {
				return result, fmt.Errorf("insert row %d: %w", row, err)
			}
			result.Imported++
		default:
			return result, fmt.Errorf("duplicate check row %d: %w", row, err)
		}
		if e.Odometer > highest {
			highest = e.Odometer
		}
	}

	if highest > vehicle.Odometer {
		v, err := l.mutateVehicle(ctx, vehicleID, func(v *models.Vehicle) (bool, error) {
			return v.AdvanceOdometer(highest), nil
		})
		if err != nil {
			return result, err
		}
		result.UpdatedOdometer = v.Odometer
	}

	l.log.WithFields(logrus.Fields{
		"vehicle_id": vehicleID.Hex(),
		"imported":   result.Imported,
		"restored":   result.Restored,
		"duplicates": result.DuplicatesSkipped,
	}).Info("Fuel log imported")
	return result, nil
}

func parseFuelLogRow(index map[string]int, record []string, row int) (*models.Expense, *RowError) {
	value := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	fail := func(col string) *RowError {
		return &RowError{Row: row, Message: fmt.Sprintf("Invalid value for field %s: %q", col, value(col))}
	}

	odometer, err := strconv.ParseFloat(value(fuelLogOdometer), 64)
	if err != nil || odometer < 0 {
		return nil, fail(fuelLogOdometer)
	}
	price, err := strconv.ParseFloat(value(fuelLogPrice), 64)
	if err != nil || price <= 0 {
		return nil, fail(fuelLogPrice)
	}
	litres, err := strconv.ParseFloat(value(fuelLogLitres), 64)
	if err != nil || litres <= 0 {
		return nil, fail(fuelLogLitres)
	}
	var date time.Time
	for _, layout := range fuelLogDateLayouts {
		if date, err = time.Parse(layout, value(fuelLogDate)); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fail(fuelLogDate)
	}

	e := &models.Expense{
		Type: models.CategoryFuel,
		FuelDetails: &models.FuelDetails{
			FuelBrand:     ImportedFuelBrand,
			PricePerLiter: price,
			Liters:        litres,
		},
		Odometer:  odometer,
		TotalCost: price * litres,
		Date:      date,
		Notes:     value(fuelLogNotes),
	}
	e.Normalize()
	return e, nil
}
