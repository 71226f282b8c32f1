package transfer

var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
		ActionCancel:  StatusCancelled,
	},
	StatusApproved: {
		ActionMarkInTransit: StatusInTransit,
		ActionComplete:      StatusCompleted,
		ActionCancel:        StatusCancelled,
	},
	StatusInTransit: {
		ActionComplete: StatusCompleted,
		ActionCancel:   StatusCancelled,
	},
}

// ParseAction validates a raw action name.
func ParseAction(raw string) (Action, error) {
	a := Action(raw)
	switch a {
	case ActionApprove, ActionReject, ActionMarkInTransit, ActionComplete, ActionCancel:
		return a, nil
	}
	return "", invalid(nil, "unknown action %q", raw)
}

// Next returns the status reached by applying a to from.
func Next(from Status, a Action) (Status, error) {
	to, ok := transitions[from][a]
	if !ok {
		return "", &InvalidTransitionError{From: from, Action: a}
	}
	return to, nil
}

// AllowedActions lists the actions accepted from s in a stable order.
func AllowedActions(s Status) []Action {
	var out []Action
	for _, a := range []Action{ActionApprove, ActionReject, ActionMarkInTransit, ActionComplete, ActionCancel} {
		if _, ok := transitions[s][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// releasesReservations reports whether reaching s frees the transfer's holds.
func releasesReservations(s Status) bool {
	return s.Terminal()
}
