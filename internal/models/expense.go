package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category is the kind of running cost an expense records.
type Category string

const (
	CategoryFuel         Category = "fuel"
	CategoryService      Category = "service"
	CategoryInsurance    Category = "insurance"
	CategoryRegistration Category = "registration"
)

// Columns of the flat expense layout shared by CSV import and export.
const (
	ColType              = "type"
	ColServiceType       = "serviceDetails.serviceType"
	ColFuelBrand         = "fuelDetails.fuelBrand"
	ColPricePerLiter     = "pricePerLiter"
	ColLiters            = "liters"
	ColRecurringInterval = "recurringInterval"
	ColOdometer          = "odometer"
	ColTotalCost         = "totalCost"
	ColNotes             = "notes"
	ColAttachmentURL     = "attachmentUrl"
	ColIsDeleted         = "isDeleted"
	ColDate              = "date"
)

// ExpenseColumns is the fixed column set, in export order.
var ExpenseColumns = []string{
	ColType,
	ColServiceType,
	ColFuelBrand,
	ColPricePerLiter,
	ColLiters,
	ColRecurringInterval,
	ColOdometer,
	ColTotalCost,
	ColNotes,
	ColAttachmentURL,
	ColIsDeleted,
	ColDate,
}

// DefaultRecurringInterval is stored when a write does not name one.
const DefaultRecurringInterval = "none"

var (
	optionalColumns = map[string]bool{ColNotes: true, ColAttachmentURL: true}
	fuelColumns     = []string{ColFuelBrand, ColPricePerLiter, ColLiters}
	serviceColumns  = []string{ColServiceType}
)

// ParseCategory returns the category named by s, and false when s names none.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.TrimSpace(s))
	return c, c.Valid()
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFuel, CategoryService, CategoryInsurance, CategoryRegistration:
		return true
	default:
		return false
	}
}

// DetailColumns returns the category-specific columns c carries.
func (c Category) DetailColumns() []string {
	switch c {
	case CategoryFuel:
		return fuelColumns
	case CategoryService:
		return serviceColumns
	default:
		return nil
	}
}

// RequiredColumns returns every column a record of category c must fill.
// Notes and attachment are always optional; detail columns belonging to
// another category are not applicable.
func (c Category) RequiredColumns() []string {
	inapplicable := make(map[string]bool)
	for _, other := range []Category{CategoryFuel, CategoryService} {
		if other == c {
			continue
		}
		for _, col := range other.DetailColumns() {
			inapplicable[col] = true
		}
	}
	cols := make([]string, 0, len(ExpenseColumns))
	for _, col := range ExpenseColumns {
		if optionalColumns[col] || inapplicable[col] {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

// FuelDetails is present only on fuel expenses.
type FuelDetails struct {
	FuelBrand     string  `json:"fuel_brand" bson:"fuel_brand"`
	PricePerLiter float64 `json:"price_per_liter" bson:"price_per_liter"`
	Liters        float64 `json:"liters" bson:"liters"`
}

// ServiceDetails is present only on service expenses.
type ServiceDetails struct {
	ServiceType string `json:"service_type" bson:"service_type"`
}

// Expense is one ledger entry for a vehicle.
type Expense struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserID            primitive.ObjectID  `json:"user_id" bson:"user_id"`
	VehicleID         primitive.ObjectID  `json:"vehicle_id" bson:"vehicle_id"`
	Type              Category            `json:"type" bson:"type"`
	FuelDetails       *FuelDetails        `json:"fuel_details,omitempty" bson:"fuel_details,omitempty"`
	ServiceDetails    *ServiceDetails     `json:"service_details,omitempty" bson:"service_details,omitempty"`
	RecurringInterval string              `json:"recurring_interval" bson:"recurring_interval"` // "none", "monthly", "yearly"
	Odometer          float64             `json:"odometer" bson:"odometer"`
	TotalCost         float64             `json:"total_cost" bson:"total_cost"`
	Notes             string              `json:"notes,omitempty" bson:"notes,omitempty"`
	AttachmentURL     string              `json:"attachment_url,omitempty" bson:"attachment_url,omitempty"`
	IsDeleted         bool                `json:"is_deleted" bson:"is_deleted"`
	DeletedBy         *primitive.ObjectID `json:"deleted_by,omitempty" bson:"deleted_by,omitempty"`
	DeletedAt         *time.Time          `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
	Date              time.Time           `json:"date" bson:"date"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}

// ServiceType returns the service label, or "" for non-service expenses.
func (e *Expense) ServiceType() string {
	if e.ServiceDetails == nil {
		return ""
	}
	return e.ServiceDetails.ServiceType
}

// FuelBrand returns the fuel brand, or "" for non-fuel expenses.
func (e *Expense) FuelBrand() string {
	if e.FuelDetails == nil {
		return ""
	}
	return e.FuelDetails.FuelBrand
}

// Volume returns the fuel volume, or 0 for non-fuel expenses.
func (e *Expense) Volume() float64 {
	if e.FuelDetails == nil {
		return 0
	}
	return e.FuelDetails.Liters
}

// Normalize drops detail blocks that do not belong to the expense category
// and fills defaults.
func (e *Expense) Normalize() {
	if e.Type != CategoryFuel {
		e.FuelDetails = nil
	}
	if e.Type != CategoryService {
		e.ServiceDetails = nil
	}
	if strings.TrimSpace(e.RecurringInterval) == "" {
		e.RecurringInterval = DefaultRecurringInterval
	}
}

// MissingFields lists the required columns of the expense's category that
// hold no value. The category itself is reported when it is unknown.
func (e *Expense) MissingFields() []string {
	if !e.Type.Valid() {
		return []string{ColType}
	}
	var missing []string
	for _, col := range e.Type.RequiredColumns() {
		if !e.has(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

func (e *Expense) has(col string) bool {
	switch col {
	case ColType:
		return e.Type != ""
	case ColServiceType:
		return strings.TrimSpace(e.ServiceType()) != ""
	case ColFuelBrand:
		return strings.TrimSpace(e.FuelBrand()) != ""
	case ColPricePerLiter:
		return e.FuelDetails != nil && e.FuelDetails.PricePerLiter > 0
	case ColLiters:
		return e.FuelDetails != nil && e.FuelDetails.Liters > 0
	case ColRecurringInterval:
		return strings.TrimSpace(e.RecurringInterval) != ""
	case ColDate:
		return !e.Date.IsZero()
	default:
		// odometer, totalCost and isDeleted are numeric or boolean and
		// always carry a value once decoded.
		return true
	}
}

// EquivalenceKey identifies "the same physical expense" for duplicate
// detection.
type EquivalenceKey struct {
	VehicleID   primitive.ObjectID
	Type        Category
	Odometer    float64
	TotalCost   float64
	Date        time.Time
	FuelBrand   string
	ServiceType string
}

// Key returns the equivalence key of e.
func (e *Expense) Key() EquivalenceKey {
	k := EquivalenceKey{
		VehicleID: e.VehicleID,
		Type:      e.Type,
		Odometer:  e.Odometer,
		TotalCost: e.TotalCost,
		Date:      e.Date,
	}
	switch e.Type {
	case CategoryFuel:
		k.FuelBrand = e.FuelBrand()
	case CategoryService:
		k.ServiceType = e.ServiceType()
	}
	return k
}

// Matches reports whether e is equivalent to k.
func (k EquivalenceKey) Matches(e *Expense) bool {
	if e.VehicleID != k.VehicleID || e.Type != k.Type ||
		e.Odometer != k.Odometer || e.TotalCost != k.TotalCost || !e.Date.Equal(k.Date) {
		return false
	}
	switch k.Type {
	case CategoryFuel:
		return e.FuelBrand() == k.FuelBrand
	case CategoryService:
		return e.ServiceType() == k.ServiceType
	}
	return true
}
