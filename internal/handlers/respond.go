package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuelscope/internal/ledger"
	"github.com/ukydev/fuelscope/internal/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// writeError maps ledger errors to HTTP statuses. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, ledger.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, ledger.ErrVehicleLimit):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		middleware.LoggerFromContext(r.Context()).WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		badRequest(w, "Invalid JSON")
		return false
	}
	return true
}

// caller builds the ledger caller from the authenticated claims.
func caller(w http.ResponseWriter, r *http.Request) (ledger.Caller, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "User context not found"})
		return ledger.Caller{}, false
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid token"})
		return ledger.Caller{}, false
	}
	return ledger.Caller{UserID: userID, Role: claims.Role}, true
}

// pathID parses the named path value as an ObjectID.
func pathID(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(r.PathValue(name))
	if err != nil {
		badRequest(w, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}
