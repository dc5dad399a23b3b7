package routing

// Outcome classifies one attempted side effect. Routing and firewall work is
// best effort: a failed step is logged and the operation continues, and a
// step whose precondition is unmet (e.g. an empty address) is skipped rather
// than failed.
type Outcome int

const (
	// Applied means the side effect was performed.
	Applied Outcome = iota
	// Skipped means a precondition was unmet and nothing was done.
	Skipped
	// Failed means the attempt failed; the failure was logged.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}
