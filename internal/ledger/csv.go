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

// ExportTimeLayout is the timestamp format of exported dates, always UTC.
const ExportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var importDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// RowError reports a rejected CSV row. Rows are numbered from 1, header
// excluded.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Imported        int        `json:"importedCount"`
	Skipped         int        `json:"skippedCount"`
	Errors          []RowError `json:"errors"`
	UpdatedOdometer float64    `json:"updatedOdometer"`
}

// ImportCSV imports expenses in the export layout into one of the caller's
// vehicles. A header lacking any column aborts the batch. Invalid rows and
// rows equivalent to an active record are skipped; the rest are inserted in
// order. The vehicle odometer advances once, after the batch.
func (l *Ledger) ImportCSV(ctx context.Context, caller Caller, vehicleID primitive.ObjectID, r io.Reader) (ImportResult, error) {
	vehicle, err := l.ownedVehicle(ctx, caller, vehicleID)
	if err != nil {
		return ImportResult{}, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return ImportResult{}, headerError(models.ExpenseColumns)
	}
	if err != nil {
		return ImportResult{}, invalid(fmt.Sprintf("read csv header: %v", err))
	}
	index := columnIndex(header)
	var missing []string
	for _, col := range models.ExpenseColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return ImportResult{}, headerError(missing)
	}

	result := ImportResult{Errors: []RowError{}, UpdatedOdometer: vehicle.Odometer}
	highest, advance := 0.0, false

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			result.Errors = append(result.Errors, RowError{Row: row, Message: parseErr.Err.Error()})
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("read csv row %d: %w", row, err)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		e, rowErrs := parseExpenseRow(index, record, row)
		if len(rowErrs) > 0 {
			result.Errors = append(result.Errors, rowErrs...)
			result.Skipped++
			continue
		}
		e.UserID = caller.UserID
		e.VehicleID = vehicleID

		// bulk import never resurrects soft-deleted records
		_, err = l.expenses.FindEquivalent(ctx, e.Key(), false)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return result, fmt.Errorf("duplicate check row %d: %w", row, err)
		}
		if err := l.expenses.InsertExpense(ctx, e); err != nil {
			return result, fmt.Errorf("insert row %d: %w", row, err)
		}
		result.Imported++
		if !e.IsDeleted && (!advance || e.Odometer > highest) {
			highest, advance = e.Odometer, true
		}
	}

	if advance {
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
		"skipped":    result.Skipped,
		"errors":     len(result.Errors),
	}).Info("Expense CSV imported")
	return result, nil
}

func headerError(missing []string) error {
	return &ValidationError{
		Fields:  missing,
		Message: "invalid CSV headers, missing columns",
		Err:     ErrHeaderMismatch,
	}
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}

// parseExpenseRow validates one row against the columns its category
// requires. Every missing or malformed field yields its own error.
func parseExpenseRow(index map[string]int, record []string, row int) (*models.Expense, []RowError) {
	value := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	category, ok := models.ParseCategory(value(models.ColType))
	if !ok {
		msg := fmt.Sprintf("Missing value for required field: %s", models.ColType)
		if value(models.ColType) != "" {
			msg = fmt.Sprintf("Unknown expense type: %s", value(models.ColType))
		}
		return nil, []RowError{{Row: row, Message: msg}}
	}

	var errs []RowError
	for _, col := range category.RequiredColumns() {
		if value(col) == "" {
			errs = append(errs, RowError{Row: row, Message: fmt.Sprintf("Missing value for required field: %s", col)})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	number := func(col string) float64 {
		raw := value(col)
		if raw == "" {
			return 0
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 {
			errs = append(errs, RowError{Row: row, Message: fmt.Sprintf("Invalid value for field %s: %q", col, raw)})
			return 0
		}
		return f
	}

	e := &models.Expense{
		Type:              category,
		RecurringInterval: value(models.ColRecurringInterval),
		Odometer:          number(models.ColOdometer),
		TotalCost:         number(models.ColTotalCost),
		Notes:             value(models.ColNotes),
		AttachmentURL:     value(models.ColAttachmentURL),
	}
	switch category {
	case models.CategoryFuel:
		e.FuelDetails = &models.FuelDetails{
			FuelBrand:     value(models.ColFuelBrand),
			PricePerLiter: number(models.ColPricePerLiter),
			Liters:        number(models.ColLiters),
		}
	case models.CategoryService:
		e.ServiceDetails = &models.ServiceDetails{ServiceType: value(models.ColServiceType)}
	}

	deleted, err := strconv.ParseBool(value(models.ColIsDeleted))
	if err != nil {
		errs = append(errs, RowError{Row: row, Message: fmt.Sprintf("Invalid value for field %s: %q", models.ColIsDeleted, value(models.ColIsDeleted))})
	}
	e.IsDeleted = deleted

	date, err := parseDate(value(models.ColDate))
	if err != nil {
		errs = append(errs, RowError{Row: row, Message: fmt.Sprintf("Invalid value for field %s: %q", models.ColDate, value(models.ColDate))})
	}
	e.Date = date

	if len(errs) > 0 {
		return nil, errs
	}
	e.Normalize()
	return e, nil
}

func parseDate(raw string) (time.Time, error) {
	var err error
	for _, layout := range importDateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// ExportCSV writes the active expenses of one of the caller's vehicles in
// the import layout, oldest first.
func (l *Ledger) ExportCSV(ctx context.Context, caller Caller, vehicleID primitive.ObjectID, w io.Writer) error {
	expenses, err := l.ListExpenses(ctx, caller, vehicleID)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(models.ExpenseColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range expenses {
		if err := writer.Write(exportRow(&expenses[i])); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func exportRow(e *models.Expense) []string {
	var price, liters string
	if e.FuelDetails != nil {
		price = formatOptional(e.FuelDetails.PricePerLiter)
		liters = formatOptional(e.FuelDetails.Liters)
	}
	row := make([]string, len(models.ExpenseColumns))
	for i, col := range models.ExpenseColumns {
		switch col {
		case models.ColType:
			row[i] = string(e.Type)
		case models.ColServiceType:
			row[i] = e.ServiceType()
		case models.ColFuelBrand:
			row[i] = e.FuelBrand()
		case models.ColPricePerLiter:
			row[i] = price
		case models.ColLiters:
			row[i] = liters
		case models.ColRecurringInterval:
			row[i] = e.RecurringInterval
		case models.ColOdometer:
			row[i] = strconv.FormatFloat(e.Odometer, 'f', -1, 64)
		case models.ColTotalCost:
			row[i] = strconv.FormatFloat(e.TotalCost, 'f', -1, 64)
		case models.ColNotes:
			row[i] = e.Notes
		case models.ColAttachmentURL:
			row[i] = e.AttachmentURL
		case models.ColIsDeleted:
			row[i] = strconv.FormatBool(e.IsDeleted)
		case models.ColDate:
			if !e.Date.IsZero() {
				row[i] = e.Date.UTC().Format(ExportTimeLayout)
			}
		}
	}
	return row
}

func formatOptional(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
