package models

import "time"

// SensorState is the bounded view of one kind published to the state sink.
type SensorState struct {
	Key         string           `json:"key"`
	InstanceID  string           `json:"instance_id"`
	Kind        DataKind         `json:"kind"`
	State       int              `json:"state"`
	StudentName string           `json:"student_name,omitempty"`
	StudentID   string           `json:"student_id,omitempty"`
	StudentSlug string           `json:"student_slug,omitempty"`
	Year        int              `json:"year,omitempty"`
	LastUpdate  time.Time        `json:"last_update"`
	TotalItems  int              `json:"total_items"`
	Items       []map[string]any `json:"items"`
}

// CalendarEvent is a projected holiday or lesson occurrence. End is exclusive.
type CalendarEvent struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
}
