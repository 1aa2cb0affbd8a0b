package handlers

import (
	"net/http"

	"github.com/ukydev/fuelscope/internal/ledger"
)

// ReminderHandler serves service reminder requests.
type ReminderHandler struct {
	ledger *ledger.Ledger
}

// NewReminderHandler creates a new reminder handler
func NewReminderHandler(l *ledger.Ledger) *ReminderHandler {
	return &ReminderHandler{ledger: l}
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reminders, err := h.ledger.ListReminders(r.Context(), c, vehicleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reminders)
}

// Due lists enabled reminders that are due or upcoming.
func (h *ReminderHandler) Due(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	due, err := h.ledger.DueReminders(r.Context(), c, vehicleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ledger.AddReminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reminder, err := h.ledger.AddReminder(r.Context(), c, vehicleID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reminder)
}

func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reminderID, ok := pathID(w, r, "reminderId")
	if !ok {
		return
	}
	var req ledger.IntervalsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reminder, err := h.ledger.UpdateReminder(r.Context(), c, vehicleID, reminderID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reminder)
}

func (h *ReminderHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reminderID, ok := pathID(w, r, "reminderId")
	if !ok {
		return
	}
	reminder, err := h.ledger.ToggleReminder(r.Context(), c, vehicleID, reminderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reminder)
}
