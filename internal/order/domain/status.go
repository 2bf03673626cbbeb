package domain

import "strings"

type Status string

const (
	StatusPending    Status = "Pending"
	StatusConfirmed  Status = "Confirmed"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// Action is a requested lifecycle step.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionProcess Action = "process"
	ActionShip    Action = "ship"
	ActionDeliver Action = "deliver"
	ActionCancel  Action = "cancel"
)

// transitions is the whole lifecycle. A pair missing from the table is rejected.
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionConfirm: StatusConfirmed,
		ActionCancel:  StatusCancelled,
	},
	StatusConfirmed: {
		ActionProcess: StatusProcessing,
		ActionShip:    StatusShipped,
		ActionCancel:  StatusCancelled,
	},
	StatusProcessing: {
		ActionShip: StatusShipped,
	},
	StatusShipped: {
		ActionDeliver: StatusDelivered,
	},
	StatusCancelled: {
		ActionCancel: StatusCancelled,
	},
}

// Next returns the status reached by applying action, or a *TransitionError.
func (s Status) Next(action Action) (Status, error) {
	next, ok := transitions[s][action]
	if !ok {
		return s, &TransitionError{From: s, Action: action}
	}
	return next, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus accepts a status name in any letter case.
func ParseStatus(v string) (Status, bool) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
		if strings.EqualFold(string(s), v) {
			return s, true
		}
	}
	return "", false
}
