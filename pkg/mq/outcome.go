package mq

// Outcome is the three-valued result of processing one unit of work.
//
// Applied means the handler performed the work. AlreadyDone means the work
// is either done or permanently not applicable, such as a duplicate or a
// missing record. Retry means a transient failure; the unit goes back on
// the queue.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeAlreadyDone
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyDone:
		return "already_done"
	case OutcomeRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// ShouldAck reports whether the delivery is acknowledged (as opposed to
// nacked back onto the queue).
func (o Outcome) ShouldAck() bool {
	return o == OutcomeApplied || o == OutcomeAlreadyDone
}
