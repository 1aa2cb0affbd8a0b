// Package notify publishes ledger alerts to interested consumers.
package notify

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Kind classifies an alert.
type Kind string

const (
	KindEfficiencyDrop Kind = "efficiency_drop"
	KindServiceDue     Kind = "service_due"
)

// Alert is a signal derived from a ledger write.
type Alert struct {
	Kind      Kind                   `json:"kind"`
	VehicleID string                 `json:"vehicle_id"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Notifier delivers alerts. Implementations must be safe for concurrent use.
type Notifier interface {
	Publish(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log. Used when no broker is configured.
type LogNotifier struct {
	Logger log.FieldLogger
}

// Publish logs the alert.
func (n LogNotifier) Publish(ctx context.Context, alert Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{
		"kind":       alert.Kind,
		"vehicle_id": alert.VehicleID,
	}).Warn(alert.Message)
	return nil
}

// Discard drops every alert.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish(context.Context, Alert) error { return nil }
