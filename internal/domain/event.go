package domain

import "time"

// Lifecycle event types emitted by the application services.
const (
	EventInstalled        = "app/installed"
	EventBillingActivated = "billing/activated"
	EventExportCompleted  = "export/completed"
)

// AppEvent is an in-process notification about a shop lifecycle change.
type AppEvent struct {
	Type   string
	Shop   string
	At     time.Time
	Detail map[string]interface{}
}
