package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/ukydev/fuelscope/internal/ledger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultImportMaxBytes bounds an uploaded CSV when no limit is configured.
const DefaultImportMaxBytes = 5 << 20

// ImportHandler serves CSV import and export.
type ImportHandler struct {
	ledger   *ledger.Ledger
	maxBytes int64
}

// NewImportHandler creates a new import handler accepting uploads of at
// most maxBytes.
func NewImportHandler(l *ledger.Ledger, maxBytes int64) *ImportHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultImportMaxBytes
	}
	return &ImportHandler{ledger: l, maxBytes: maxBytes}
}

// Export streams the vehicle's active expenses as CSV.
func (h *ImportHandler) Export(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.ledger.ExportCSV(r.Context(), c, vehicleID, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"expenses-%s.csv\"", vehicleID.Hex()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Import loads expenses in the export layout.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	h.serveImport(w, r, "id", func(c ledger.Caller, id primitive.ObjectID, body io.Reader) (interface{}, error) {
		return h.ledger.ImportCSV(r.Context(), c, id, body)
	})
}

// ImportFuelLog loads fill-ups from a legacy fuel log.
func (h *ImportHandler) ImportFuelLog(w http.ResponseWriter, r *http.Request) {
	h.serveImport(w, r, "vehicleId", func(c ledger.Caller, id primitive.ObjectID, body io.Reader) (interface{}, error) {
		return h.ledger.ImportFuelLog(r.Context(), c, id, body)
	})
}

func (h *ImportHandler) serveImport(w http.ResponseWriter, r *http.Request, param string,
	run func(ledger.Caller, primitive.ObjectID, io.Reader) (interface{}, error)) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	vehicleID, ok := pathID(w, r, param)
	if !ok {
		return
	}
	body, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	result, err := run(c, vehicleID, bytes.NewReader(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// readUpload returns the CSV from a multipart "file" field or from the raw
// request body.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			if tooLarge(err) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload too large"})
				return nil, false
			}
			badRequest(w, "file is required")
			return nil, false
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		if tooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload too large"})
			return nil, false
		}
		badRequest(w, "Failed to read upload")
		return nil, false
	}
	return data, true
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
