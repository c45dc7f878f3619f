package door

import (
	"fmt"
	"strings"
)

// DoorState is the current observable state of the door. The numeric values
// match the HomeKit CurrentDoorState characteristic.
type DoorState int

const (
	StateOpen DoorState = iota
	StateClosed
	StateOpening
	StateClosing
	StateStopped
)

var doorStateNames = map[DoorState]string{
	StateOpen:    "OPEN",
	StateClosed:  "CLOSED",
	StateOpening: "OPENING",
	StateClosing: "CLOSING",
	StateStopped: "STOPPED",
}

func (s DoorState) String() string {
	if name, ok := doorStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DoorState(%d)", int(s))
}

// MarshalText encodes the state as its upper-case name.
func (s DoorState) MarshalText() ([]byte, error) {
	if _, ok := doorStateNames[s]; !ok {
		return nil, fmt.Errorf("invalid door state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts the state name in any case.
func (s *DoorState) UnmarshalText(b []byte) error {
	want := strings.ToUpper(strings.TrimSpace(string(b)))
	for state, name := range doorStateNames {
		if name == want {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown door state %q", string(b))
}

// StateFromClosed maps the device's closed fact to a terminal door state.
func StateFromClosed(closed bool) DoorState {
	if closed {
		return StateClosed
	}
	return StateOpen
}

// TargetState is the last commanded end position. The numeric values match
// the HomeKit TargetDoorState characteristic.
type TargetState int

const (
	TargetOpen TargetState = iota
	TargetClosed
)

func (t TargetState) String() string {
	switch t {
	case TargetOpen:
		return "OPEN"
	case TargetClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("TargetState(%d)", int(t))
}

func (t TargetState) MarshalText() ([]byte, error) {
	if t != TargetOpen && t != TargetClosed {
		return nil, fmt.Errorf("invalid target state %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *TargetState) UnmarshalText(b []byte) error {
	parsed, err := ParseTarget(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTarget parses "OPEN" or "CLOSED", ignoring case and surrounding space.
func ParseTarget(s string) (TargetState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPEN":
		return TargetOpen, nil
	case "CLOSED", "CLOSE":
		return TargetClosed, nil
	}
	return 0, fmt.Errorf("unknown target state %q", s)
}

// TargetFromClosed maps the device's closed fact to a target state.
func TargetFromClosed(closed bool) TargetState {
	if closed {
		return TargetClosed
	}
	return TargetOpen
}

// SatisfiedBy reports whether a door whose closed fact is closed already sits
// in the target position.
func (t TargetState) SatisfiedBy(closed bool) bool {
	return (t == TargetClosed) == closed
}

// Terminal is the door state reached once the target is confirmed.
func (t TargetState) Terminal() DoorState {
	if t == TargetClosed {
		return StateClosed
	}
	return StateOpen
}

// Transitional is the optimistic state shown while a command is in flight.
// The remote protocol cannot tell "closing" from "closed", so a close request
// reports CLOSED directly.
func (t TargetState) Transitional() DoorState {
	if t == TargetClosed {
		return StateClosed
	}
	return StateOpening
}

// Action is the command needed to move the door toward the target.
func (t TargetState) Action() Action {
	if t == TargetClosed {
		return ActionClose
	}
	return ActionOpen
}

// Action is a command requested of the remote device.
type Action string

const (
	ActionOpen  Action = "Open"
	ActionClose Action = "Close"
)
