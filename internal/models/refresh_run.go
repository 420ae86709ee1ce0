package models

import "time"

// RefreshTrigger identifies what started a refresh cycle.
type RefreshTrigger string

const (
	TriggerSetup       RefreshTrigger = "setup"
	TriggerSchedule    RefreshTrigger = "schedule"
	TriggerPoll        RefreshTrigger = "poll"
	TriggerManual      RefreshTrigger = "manual"
	// TriggerReconfigure runs a cycle on a client rebuilt by Reconfigure.
	TriggerReconfigure RefreshTrigger = "reconfigure"
)

// RefreshStatus is the outcome of a refresh cycle.
type RefreshStatus string

const (
	RefreshRunning   RefreshStatus = "running"
	RefreshSucceeded RefreshStatus = "succeeded"
	RefreshFailed    RefreshStatus = "failed"
)

// RefreshRun records a single refresh cycle.
type RefreshRun struct {
	ID         string         `db:"id" json:"id"`
	InstanceID string         `db:"instance_id" json:"instance_id"`
	Trigger    RefreshTrigger `db:"trigger" json:"trigger"`
	Status     RefreshStatus  `db:"status" json:"status"`
	Error      *string        `db:"error" json:"error,omitempty"`
	Students   int            `db:"students" json:"students"`
	Items      int            `db:"items" json:"items"`
	StartedAt  time.Time      `db:"started_at" json:"started_at"`
	FinishedAt *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
}

// RefreshRunFilter narrows refresh history queries.
type RefreshRunFilter struct {
	InstanceID string
	Status     *RefreshStatus
	Page       int
	PageSize   int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// RefreshOutcome reports what a manual refresh request did for one instance.
type RefreshOutcome struct {
	InstanceID string `json:"instance_id"`
	// Status is queued, coalesced, succeeded or failed.
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Shared bool   `json:"shared,omitempty"`
}
