package sched

// Policy selects between the two scheduling policies spec.md §4.3
// names, fixed at boot.
type Policy int

const (
	// PolicyPriority is strict priority + round-robin within
	// priority, the default.
	PolicyPriority Policy = iota
	// PolicyMLFQS is the multi-level feedback queue policy.
	PolicyMLFQS
)

func (p Policy) String() string {
	if p == PolicyMLFQS {
		return "mlfqs"
	}
	return "priority"
}
