package handlers

import (
	"net/http"

	"github.com/ukydev/fuelscope/internal/ledger"
)

// VehicleHandler serves vehicle requests.
type VehicleHandler struct {
	ledger *ledger.Ledger
}

// NewVehicleHandler creates a new vehicle handler
func NewVehicleHandler(l *ledger.Ledger) *VehicleHandler {
	return &VehicleHandler{ledger: l}
}

func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req ledger.VehicleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.ledger.CreateVehicle(r.Context(), c, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicles, err := h.ledger.ListVehicles(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	v, err := h.ledger.GetVehicle(r.Context(), c, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Update renames a vehicle or corrects its odometer. Lowering the odometer
// below any recorded reading is rejected.
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ledger.VehicleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.ledger.UpdateVehicle(r.Context(), c, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete removes a vehicle together with all of its expenses.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.ledger.DeleteVehicle(r.Context(), c, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
