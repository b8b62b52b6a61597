package signal

import "fmt"

// State is the discrete classification of one instrument at one evaluation.
type State int

const (
	Neutral State = iota
	EnterLong
	ExitShort
)

func (s State) String() string {
	switch s {
	case Neutral:
		return "NEUTRAL"
	case EnterLong:
		return "ENTER_LONG"
	case ExitShort:
		return "EXIT_SHORT"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Label is the human-facing name used in reports and alerts.
func (s State) Label() string {
	switch s {
	case EnterLong:
		return "Enter (Long)"
	case ExitShort:
		return "Exit (Short)"
	default:
		return "Neutral (Hold)"
	}
}

// Directional reports whether s is EnterLong or ExitShort.
func (s State) Directional() bool { return s == EnterLong || s == ExitShort }

func (s State) MarshalText() ([]byte, error) {
	switch s {
	case Neutral, EnterLong, ExitShort:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("signal: invalid state %d", int(s))
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NEUTRAL":
		*s = Neutral
	case "ENTER_LONG":
		*s = EnterLong
	case "EXIT_SHORT":
		*s = ExitShort
	default:
		return fmt.Errorf("signal: unknown state %q", string(b))
	}
	return nil
}
