package setup

import "fmt"

// State is the position of a Center in its run.
type State int

const (
	StateNone State = iota
	StateRegistered
	StateRegistrationError
	StateInitialized
	StateInitializationError
	StateInstalled
	StateInstallationError
	StateSettled
	StateSettlementError
)

var stateNames = [...]string{
	StateNone:                "None",
	StateRegistered:          "Registered",
	StateRegistrationError:   "RegistrationError",
	StateInitialized:         "Initialized",
	StateInitializationError: "InitializationError",
	StateInstalled:           "Installed",
	StateInstallationError:   "InstallationError",
	StateSettled:             "Settled",
	StateSettlementError:     "SettlementError",
}

func (s State) String() string {
	if s >= StateNone && s <= StateSettlementError {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsError reports whether s is one of the error states.
func (s State) IsError() bool {
	switch s {
	case StateRegistrationError, StateInitializationError, StateInstallationError, StateSettlementError:
		return true
	}
	return false
}
