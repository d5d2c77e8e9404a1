package order

import "slices"

// Status is the lifecycle state of an order, persisted as a small integer.
type Status int16

const (
	StatusPendingPayment Status = 1
	StatusPaid           Status = 2
	StatusShipped        Status = 3
	StatusCompleted      Status = 4
	StatusCancelled      Status = 5
)

var statusNames = map[Status]string{
	StatusPendingPayment: "pending_payment",
	StatusPaid:           "paid",
	StatusShipped:        "shipped",
	StatusCompleted:      "completed",
	StatusCancelled:      "cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the five defined statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// allowedTransitions lists, per current status, the statuses an order may
// move to. Completed and Cancelled are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPendingPayment: {StatusPaid, StatusCancelled},
	StatusPaid:           {StatusShipped},
	StatusShipped:        {StatusCompleted},
}

// CanTransitionTo reports whether the transition table allows s → next.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(allowedTransitions[s], next)
}

// Editable reports whether order metadata may still change.
func (s Status) Editable() bool {
	return s == StatusPendingPayment
}

// Deletable reports whether an order in this status may be removed.
func (s Status) Deletable() bool {
	return s == StatusPendingPayment || s == StatusPaid
}
