package billing

// transitions is the explicit state machine: (current status, event) → next
// status. Pairs absent from the table are illegal and rejected by the caller
// instead of silently falling through scattered conditionals.
//
// Self-transitions are deliberate: the gateway delivers webhooks at least
// once, so re-applying the same event must land on the same state.
var transitions = map[Status]map[EventKind]Status{
	StatusPending: {
		EventActivated: StatusActive,
		EventCharged:   StatusActive,
		EventResumed:   StatusActive,
		EventPending:   StatusPending,
		EventPaused:    StatusPastDue,
		EventHalted:    StatusPastDue,
		EventCancelled: StatusCanceled,
		EventCompleted: StatusCanceled,
	},
	StatusActive: {
		EventActivated: StatusActive,
		EventCharged:   StatusActive,
		EventResumed:   StatusActive,
		EventPending:   StatusPending,
		EventPaused:    StatusPastDue,
		EventHalted:    StatusPastDue,
		EventCancelled: StatusCanceled,
		EventCompleted: StatusCanceled,
	},
	StatusPastDue: {
		EventActivated: StatusActive,
		EventCharged:   StatusActive,
		EventResumed:   StatusActive,
		EventPending:   StatusPending,
		EventPaused:    StatusPastDue,
		EventHalted:    StatusPastDue,
		EventCancelled: StatusCanceled,
		EventCompleted: StatusCanceled,
	},
	StatusCanceled: {
		// A captured charge is the strongest available health signal and may
		// legitimately trail a cancellation (final prorated charge), so it
		// reactivates even a canceled record.
		EventCharged:   StatusActive,
		EventCancelled: StatusCanceled,
		EventCompleted: StatusCanceled,
	},
}

// NextStatus resolves the transition table. The second return is false when
// the pair is illegal; callers log and reject without mutating state.
func NextStatus(from Status, event EventKind) (Status, bool) {
	row, ok := transitions[from]
	if !ok {
		return "", false
	}
	next, ok := row[event]
	return next, ok
}
