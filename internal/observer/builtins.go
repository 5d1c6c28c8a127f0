package observer

import (
	"fmt"

	"go.uber.org/zap"

	"kasirinaja/backoffice/internal/store"
)

const (
	NameInventory    = "inventory"
	NameNotification = "notification"
	NameLogging      = "logging"
	NameAnalytics    = "analytics"
)

// Builtins carries the collaborators of the standard observers. A nil
// Inventory skips the inventory observer; a nil Notifier falls back to the
// log.
type Builtins struct {
	Inventory store.InventoryRepository
	Audit     store.AuditRepository
	Notifier  Notifier
	Sink      AnalyticsSink
	Logger    *zap.Logger
}

// RegisterBuiltins registers the inventory, notification, logging and
// analytics observers in that order and returns the analytics observer so
// callers can read its report.
func RegisterBuiltins(d *Dispatcher, b Builtins) (*Analytics, error) {
	notifier := b.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(b.Logger)
	}

	if b.Inventory != nil {
		if err := d.Register(NameInventory, NewInventory(b.Inventory)); err != nil {
			return nil, fmt.Errorf("register %s observer: %w", NameInventory, err)
		}
	}
	if err := d.Register(NameNotification, NewNotificationObserver(notifier)); err != nil {
		return nil, fmt.Errorf("register %s observer: %w", NameNotification, err)
	}
	if err := d.Register(NameLogging, NewEventLog(b.Logger, b.Audit)); err != nil {
		return nil, fmt.Errorf("register %s observer: %w", NameLogging, err)
	}
	analytics := NewAnalytics(b.Sink)
	if err := d.Register(NameAnalytics, analytics); err != nil {
		return nil, fmt.Errorf("register %s observer: %w", NameAnalytics, err)
	}
	return analytics, nil
}
