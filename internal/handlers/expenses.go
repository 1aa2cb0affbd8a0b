package handlers

import (
	"net/http"

	"github.com/ukydev/fuelscope/internal/ledger"
)

// ExpenseHandler serves expense requests.
type ExpenseHandler struct {
	ledger *ledger.Ledger
}

// NewExpenseHandler creates a new expense handler
func NewExpenseHandler(l *ledger.Ledger) *ExpenseHandler {
	return &ExpenseHandler{ledger: l}
}

// Create adds an expense. A new record answers 201, a restored
// soft-deleted record 200, and an active duplicate 409 with the existing
// record in the body.
func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req ledger.AddExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.ledger.AddExpense(r.Context(), c, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	switch result.Outcome {
	case ledger.OutcomeRestored:
		status = http.StatusOK
	case ledger.OutcomeConflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

// List returns the active expenses of a vehicle, oldest first.
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicleID, ok := pathID(w, r, "vehicleId")
	if !ok {
		return
	}
	expenses, err := h.ledger.ListExpenses(r.Context(), c, vehicleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ledger.UpdateExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.ledger.UpdateExpense(r.Context(), c, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Delete soft-deletes an expense and returns it.
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	e, err := h.ledger.DeleteExpense(r.Context(), c, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
