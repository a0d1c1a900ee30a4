package session

// Status is the lifecycle phase of a session. Transitions only move forward:
// Forming -> Active -> FinalRound -> Ended, with Ended reachable from any
// phase. Illegal transition attempts are ignored, not errors, because
// concurrent disconnection paths routinely race to end the same session.
type Status int

const (
	StatusForming Status = iota
	StatusActive
	StatusFinalRound
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusForming:
		return "forming"
	case StatusActive:
		return "active"
	case StatusFinalRound:
		return "final_round"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// inPlay reports whether turns are being taken.
func (s Status) inPlay() bool {
	return s == StatusActive || s == StatusFinalRound
}
