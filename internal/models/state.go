// Package models defines state management structures for intake flows.
package models

import "time"

// FlowState is a live intake session: one per identifier with an unfinished dialogue.
type FlowState struct {
	Identifier   string             `json:"identifier"`
	Phone        string             `json:"phone"` // canonical, may be empty
	FlowType     FlowType           `json:"flow_type"`
	CurrentState StateType          `json:"current_state"`
	StateData    map[DataKey]string `json:"state_data,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate StateData freely.
func (s FlowState) Clone() FlowState {
	out := s
	out.StateData = s.Snapshot()
	return out
}

// Snapshot copies the collected fields.
func (s FlowState) Snapshot() map[DataKey]string {
	out := make(map[DataKey]string, len(s.StateData))
	for k, v := range s.StateData {
		out[k] = v
	}
	return out
}

// Field returns a collected value or "".
func (s FlowState) Field(key DataKey) string {
	if s.StateData == nil {
		return ""
	}
	return s.StateData[key]
}
