package models

import "time"

// ScheduleType selects how refreshes are triggered.
type ScheduleType string

const (
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekly   ScheduleType = "weekly"
	ScheduleInterval ScheduleType = "interval"
)

// InstanceOptions holds the tunable options of an instance. A nil field means
// the option is unset; the same shape is used for free-form overrides.
type InstanceOptions struct {
	HomeworkDaysBack     *int    `json:"homework_days_back,omitempty" mapstructure:"homework_days_back" db:"homework_days_back"`
	HomeworkDaysForward  *int    `json:"homework_days_forward,omitempty" mapstructure:"homework_days_forward" db:"homework_days_forward"`
	ScheduleType         *string `json:"schedule_type,omitempty" mapstructure:"schedule_type" db:"schedule_type"`
	ScheduleTime         *string `json:"schedule_time,omitempty" mapstructure:"schedule_time" db:"schedule_time"`
	ScheduleDays         []int   `json:"schedule_days,omitempty" mapstructure:"schedule_days" db:"-"`
	ScheduleInterval     *int    `json:"schedule_interval,omitempty" mapstructure:"schedule_interval" db:"schedule_interval"`
	MaxItemsInAttributes *int    `json:"max_items_in_attributes,omitempty" mapstructure:"max_items_in_attributes" db:"max_items_in_attributes"`
}

// InstanceDefinition configures one parent account.
type InstanceDefinition struct {
	ID       string          `json:"id" mapstructure:"id" validate:"required"`
	School   string          `json:"school" mapstructure:"school" validate:"required"`
	Username string          `json:"username" mapstructure:"username" validate:"required"`
	Password string          `json:"password" mapstructure:"password" validate:"required"`
	Year     *int            `json:"year,omitempty" mapstructure:"year" validate:"omitempty,min=2000,max=2100"`
	BaseURL  string          `json:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`
	Options  InstanceOptions `json:"options" mapstructure:"options"`
	// Overrides win over Options per key when set.
	Overrides InstanceOptions `json:"overrides" mapstructure:"overrides"`
}

// Redacted returns a copy safe for diagnostics output.
func (d InstanceDefinition) Redacted() InstanceDefinition {
	out := d
	if out.Username != "" {
		out.Username = RedactedValue
	}
	if out.Password != "" {
		out.Password = RedactedValue
	}
	return out
}

// RedactedValue replaces secrets in diagnostics.
const RedactedValue = "**REDACTED**"

// ScheduleConfig is the sanitized schedule in effect for an instance.
type ScheduleConfig struct {
	Type            ScheduleType `json:"type"`
	Time            string       `json:"time"`
	Hour            int          `json:"-"`
	Minute          int          `json:"-"`
	Days            []int        `json:"days"`
	IntervalMinutes int          `json:"interval_minutes"`
}

// EffectiveOptions is the merged and sanitized option set of an instance.
type EffectiveOptions struct {
	HomeworkDaysBack     int            `json:"homework_days_back"`
	HomeworkDaysForward  int            `json:"homework_days_forward"`
	MaxItemsInAttributes int            `json:"max_items_in_attributes"`
	Schedule             ScheduleConfig `json:"schedule"`
}

// InstanceState describes instance availability.
type InstanceState string

const (
	InstanceStarting    InstanceState = "starting"
	InstanceAvailable   InstanceState = "available"
	InstanceUnavailable InstanceState = "unavailable"
)

// InstanceStatus reports availability and the outcome of the last refresh.
type InstanceStatus struct {
	ID            string           `json:"id"`
	State         InstanceState    `json:"state"`
	Error         string           `json:"error,omitempty"`
	SchoolID      int              `json:"school_id,omitempty"`
	Year          int              `json:"year,omitempty"`
	Students      []StudentSummary `json:"students"`
	LastRefreshAt *time.Time       `json:"last_refresh_at,omitempty"`
	LastSuccessAt *time.Time       `json:"last_success_at,omitempty"`
	Options       EffectiveOptions `json:"options"`
}

// InstanceDiagnostics is the redacted configuration and status dump of an instance.
type InstanceDiagnostics struct {
	Definition InstanceDefinition `json:"definition"`
	Status     InstanceStatus     `json:"status"`
	TotalItems int                `json:"total_items"`
	LastRun    *RefreshRun        `json:"last_run,omitempty"`
}
