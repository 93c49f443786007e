// Package notify defines the fire-and-forget interface to the external
// notification service. Delivery failure never blocks or rolls back
// engine state; callers log the error and move on.
package notify

import "context"

// EventType names the member-facing notifications the engine emits.
type EventType string

const (
	EventContributionReceived EventType = "CONTRIBUTION_RECEIVED"
	EventLateContribution     EventType = "LATE_CONTRIBUTION"
	EventDefaultWarning       EventType = "DEFAULT_WARNING"
	EventCycleDefaulted       EventType = "CYCLE_DEFAULTED"
	EventPayoutSent           EventType = "PAYOUT_SENT"
	EventCircleClosed         EventType = "CIRCLE_CLOSED"
)

// Notifier delivers one notification to one user.
type Notifier interface {
	Notify(ctx context.Context, userID string, event EventType, payload map[string]string) error
}
