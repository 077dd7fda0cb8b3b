package issue

import "fmt"

// allowedTransitions defines the permitted status changes.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusOpen: {
		StatusInProgress: {},
		StatusBlocked:    {},
		StatusClosed:     {},
	},
	StatusInProgress: {
		StatusOpen:    {},
		StatusClosed:  {},
		StatusBlocked: {},
	},
	StatusBlocked: {
		StatusOpen: {},
	},
	StatusClosed: {
		StatusOpen: {},
	},
}

// ValidateTransition returns an error when a status change is not allowed.
// Same-status writes are accepted.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("%w: transition from %q to %q not allowed", ErrInvalidStatus, from, to)
	}
	return nil
}
