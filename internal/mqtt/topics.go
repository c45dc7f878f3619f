package mqtt

import "strings"

// Topics builds the topic names for one door.
type Topics struct {
	Prefix   string
	DeviceID string
}

func (t Topics) base() string {
	return strings.TrimSuffix(t.Prefix, "/") + "/" + t.DeviceID
}

// State is where characteristic updates are published, retained.
func (t Topics) State() string {
	return t.base() + "/state"
}

// TargetSet accepts target state requests.
func (t Topics) TargetSet() string {
	return t.base() + "/target/set"
}

// Availability carries the retained online/offline marker.
func (t Topics) Availability() string {
	return t.base() + "/availability"
}
