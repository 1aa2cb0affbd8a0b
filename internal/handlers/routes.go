package handlers

import (
	"net/http"

	"github.com/ukydev/fuelscope/internal/auth"
	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/ledger"
)

// NewRouter registers every API route on a new mux. Authentication and the
// rest of the middleware chain are applied by the caller.
func NewRouter(authService *auth.Service, users db.UserCollection, l *ledger.Ledger, importMaxBytes int64) *http.ServeMux {
	authHandler := NewAuthHandler(authService, users)
	vehicles := NewVehicleHandler(l)
	expenses := NewExpenseHandler(l)
	reminders := NewReminderHandler(l)
	imports := NewImportHandler(l, importMaxBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ping", Ping)

	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/auth/profile", authHandler.GetProfile)

	mux.HandleFunc("POST /api/vehicles", vehicles.Create)
	mux.HandleFunc("GET /api/vehicles", vehicles.List)
	mux.HandleFunc("GET /api/vehicles/{id}", vehicles.Get)
	mux.HandleFunc("PUT /api/vehicles/{id}", vehicles.Update)
	mux.HandleFunc("DELETE /api/vehicles/{id}", vehicles.Delete)

	mux.HandleFunc("POST /api/expenses", expenses.Create)
	mux.HandleFunc("GET /api/expenses/{vehicleId}", expenses.List)
	mux.HandleFunc("PUT /api/expenses/{id}", expenses.Update)
	mux.HandleFunc("DELETE /api/expenses/{id}", expenses.Delete)

	mux.HandleFunc("GET /api/vehicles/{id}/expenses/export", imports.Export)
	mux.HandleFunc("POST /api/vehicles/{id}/expenses/import", imports.Import)
	mux.HandleFunc("POST /api/import/fuel/{vehicleId}", imports.ImportFuelLog)

	mux.HandleFunc("GET /api/vehicles/{id}/reminders", reminders.List)
	mux.HandleFunc("GET /api/vehicles/{id}/reminders/due", reminders.Due)
	mux.HandleFunc("POST /api/vehicles/{id}/reminders", reminders.Create)
	mux.HandleFunc("PUT /api/vehicles/{id}/reminders/{reminderId}", reminders.Update)
	mux.HandleFunc("PATCH /api/vehicles/{id}/reminders/{reminderId}/toggle", reminders.Toggle)

	return mux
}

// Ping reports that the server is up.
func Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
