package db

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ukydev/fuelscope/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore implements the expense, vehicle and user collections in
// memory. It is used by tests and by STORAGE_DRIVER=memory.
type MemoryStore struct {
	mu sync.RWMutex

	expenses map[primitive.ObjectID]models.Expense
	vehicles map[primitive.ObjectID]*models.Vehicle
	users    map[primitive.ObjectID]models.User
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expenses: make(map[primitive.ObjectID]models.Expense),
		vehicles: make(map[primitive.ObjectID]*models.Vehicle),
		users:    make(map[primitive.ObjectID]models.User),
	}
}

var (
	_ ExpenseCollection = (*MemoryStore)(nil)
	_ VehicleCollection = (*MemoryStore)(nil)
	_ UserCollection    = (*MemoryStore)(nil)
)

// Expense operations

func (m *MemoryStore) InsertExpense(ctx context.Context, expense *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expense.ID.IsZero() {
		expense.ID = primitive.NewObjectID()
	}
	now := time.Now()
	expense.CreatedAt = now
	expense.UpdatedAt = now
	m.expenses[expense.ID] = cloneExpense(*expense)
	return nil
}

func (m *MemoryStore) ReplaceExpense(ctx context.Context, expense *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.expenses[expense.ID]; !ok {
		return ErrNotFound
	}
	expense.UpdatedAt = time.Now()
	m.expenses[expense.ID] = cloneExpense(*expense)
	return nil
}

func (m *MemoryStore) FindExpenseByID(ctx context.Context, id primitive.ObjectID) (*models.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.expenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneExpense(e)
	return &out, nil
}

func (m *MemoryStore) DeleteExpense(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(m.expenses, id)
	return nil
}

func (m *MemoryStore) PurgeVehicle(ctx context.Context, vehicleID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, e := range m.expenses {
		if e.VehicleID == vehicleID {
			delete(m.expenses, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) FindEquivalent(ctx context.Context, key models.EquivalenceKey, deleted bool) (*models.Expense, error) {
	return m.first(func(e *models.Expense) bool {
		return e.IsDeleted == deleted && key.Matches(e)
	})
}

func (m *MemoryStore) FindFuelOnDay(ctx context.Context, vehicleID primitive.ObjectID, odometer, totalCost float64, day time.Time) (*models.Expense, error) {
	start, end := dayBounds(day)
	return m.first(func(e *models.Expense) bool {
		return e.VehicleID == vehicleID && e.Type == models.CategoryFuel &&
			e.Odometer == odometer && e.TotalCost == totalCost &&
			!e.Date.Before(start) && e.Date.Before(end)
	})
}

func (m *MemoryStore) RecentFuel(ctx context.Context, vehicleID, excludeID primitive.ObjectID, limit int) ([]models.Expense, error) {
	matches := m.filter(func(e *models.Expense) bool {
		return e.VehicleID == vehicleID && e.Type == models.CategoryFuel && !e.IsDeleted && e.ID != excludeID
	})
	sortNewestFirst(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *MemoryStore) LatestService(ctx context.Context, vehicleID primitive.ObjectID, serviceType string, excludeID primitive.ObjectID) (*models.Expense, error) {
	return m.first(func(e *models.Expense) bool {
		return e.VehicleID == vehicleID && e.Type == models.CategoryService && !e.IsDeleted &&
			e.ID != excludeID && strings.EqualFold(e.ServiceType(), serviceType)
	})
}

func (m *MemoryStore) MaxOdometer(ctx context.Context, vehicleID primitive.ObjectID) (float64, bool, error) {
	matches := m.filter(func(e *models.Expense) bool {
		return e.VehicleID == vehicleID && !e.IsDeleted
	})
	if len(matches) == 0 {
		return 0, false, nil
	}
	max := matches[0].Odometer
	for _, e := range matches[1:] {
		if e.Odometer > max {
			max = e.Odometer
		}
	}
	return max, true, nil
}

func (m *MemoryStore) ListActive(ctx context.Context, vehicleID primitive.ObjectID) ([]models.Expense, error) {
	matches := m.filter(func(e *models.Expense) bool {
		return e.VehicleID == vehicleID && !e.IsDeleted
	})
	sortNewestFirst(matches)
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	return matches, nil
}

// first returns the newest matching expense.
func (m *MemoryStore) first(match func(*models.Expense) bool) (*models.Expense, error) {
	matches := m.filter(match)
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	sortNewestFirst(matches)
	return &matches[0], nil
}

func (m *MemoryStore) filter(match func(*models.Expense) bool) []models.Expense {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Expense{}
	for _, e := range m.expenses {
		if match(&e) {
			out = append(out, cloneExpense(e))
		}
	}
	return out
}

func sortNewestFirst(expenses []models.Expense) {
	sort.Slice(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.After(expenses[j].Date)
		}
		return bytes.Compare(expenses[i].ID[:], expenses[j].ID[:]) > 0
	})
}

func cloneExpense(e models.Expense) models.Expense {
	if e.FuelDetails != nil {
		fd := *e.FuelDetails
		e.FuelDetails = &fd
	}
	if e.ServiceDetails != nil {
		sd := *e.ServiceDetails
		e.ServiceDetails = &sd
	}
	if e.DeletedBy != nil {
		id := *e.DeletedBy
		e.DeletedBy = &id
	}
	if e.DeletedAt != nil {
		at := *e.DeletedAt
		e.DeletedAt = &at
	}
	return e
}

// Vehicle operations

func (m *MemoryStore) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = time.Now()
	}
	m.vehicles[vehicle.ID] = vehicle.Clone()
	return nil
}

func (m *MemoryStore) FindVehicleByID(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v.Clone(), nil
}

func (m *MemoryStore) FindVehiclesByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Vehicle{}
	for _, v := range m.vehicles {
		if v.UserID == userID {
			out = append(out, *v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CountVehiclesByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	vehicles, err := m.FindVehiclesByUser(ctx, userID)
	return int64(len(vehicles)), err
}

func (m *MemoryStore) ReplaceVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.vehicles[vehicle.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != vehicle.Version {
		return ErrVersionConflict
	}
	vehicle.Version++
	m.vehicles[vehicle.ID] = vehicle.Clone()
	return nil
}

func (m *MemoryStore) DeleteVehicle(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.vehicles[id]; !ok {
		return ErrNotFound
	}
	delete(m.vehicles, id)
	return nil
}

// User operations

func (m *MemoryStore) InsertUser(ctx context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	user.IsActive = true
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[objectID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateLastLogin(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[objectID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	u.UpdatedAt = now
	m.users[objectID] = u
	return nil
}
