package dto

import "github.com/noah-isme/mashov-bridge/internal/models"

// UpdateOptionsRequest changes the structured options of an instance.
// Omitted fields keep their current value.
type UpdateOptionsRequest struct {
	HomeworkDaysBack     *int    `json:"homework_days_back" validate:"omitempty,min=0,max=60"`
	HomeworkDaysForward  *int    `json:"homework_days_forward" validate:"omitempty,min=1,max=120"`
	ScheduleType         *string `json:"schedule_type" validate:"omitempty,oneof=daily weekly interval"`
	ScheduleTime         *string `json:"schedule_time" validate:"omitempty,max=5"`
	ScheduleDays         []int   `json:"schedule_days" validate:"omitempty,dive,min=0,max=6"`
	ScheduleInterval     *int    `json:"schedule_interval" validate:"omitempty,min=5,max=1440"`
	MaxItemsInAttributes *int    `json:"max_items_in_attributes" validate:"omitempty,min=10,max=500"`
}

// Options converts the request into an option update.
func (r UpdateOptionsRequest) Options() models.InstanceOptions {
	return models.InstanceOptions{
		HomeworkDaysBack:     r.HomeworkDaysBack,
		HomeworkDaysForward:  r.HomeworkDaysForward,
		ScheduleType:         r.ScheduleType,
		ScheduleTime:         r.ScheduleTime,
		ScheduleDays:         r.ScheduleDays,
		ScheduleInterval:     r.ScheduleInterval,
		MaxItemsInAttributes: r.MaxItemsInAttributes,
	}
}

// RefreshRequest triggers a manual refresh. An empty InstanceID refreshes
// every configured instance.
type RefreshRequest struct {
	InstanceID string `json:"instance_id"`
	Wait       bool   `json:"wait"`
}

// RefreshResponse reports what happened per instance.
type RefreshResponse struct {
	Outcomes []models.RefreshOutcome `json:"outcomes"`
}

// NextRunsResponse lists pending scheduled refreshes.
type NextRunsResponse struct {
	InstanceID string                `json:"instance_id"`
	Schedule   models.ScheduleConfig `json:"schedule"`
	NextRuns   []string              `json:"next_runs"`
}

// RefreshRunQuery filters the refresh history.
type RefreshRunQuery struct {
	InstanceID string `form:"instance_id"`
	Status     string `form:"status" validate:"omitempty,oneof=running succeeded failed"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"page_size" validate:"omitempty,min=1,max=200"`
}

// DateRangeQuery bounds calendar queries. Dates are YYYY-MM-DD or RFC 3339.
type DateRangeQuery struct {
	Start string `form:"start" validate:"required"`
	End   string `form:"end" validate:"required"`
}

// StudentDataResponse is the full, unbounded data of one student.
type StudentDataResponse struct {
	Student models.StudentSummary `json:"student"`
	Data    any                   `json:"data"`
}
