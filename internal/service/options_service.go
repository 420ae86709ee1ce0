package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

// Option defaults and bounds.
const (
	DefaultScheduleType     = models.ScheduleDaily
	DefaultScheduleTime     = "02:30"
	DefaultScheduleDay      = 6
	DefaultScheduleInterval = 60
	MinScheduleInterval     = 5
	MaxScheduleInterval     = 1440

	DefaultMaxItems = 100
	MinMaxItems     = 10
	MaxMaxItems     = 500

	DefaultHomeworkDaysBack    = 7
	MaxHomeworkDaysBack        = 60
	DefaultHomeworkDaysForward = 21
	MinHomeworkDaysForward     = 1
	MaxHomeworkDaysForward     = 120
)

// MergeOptions overlays overrides onto options. A set override wins per key.
func MergeOptions(options, overrides models.InstanceOptions) models.InstanceOptions {
	merged := options
	if overrides.HomeworkDaysBack != nil {
		merged.HomeworkDaysBack = overrides.HomeworkDaysBack
	}
	if overrides.HomeworkDaysForward != nil {
		merged.HomeworkDaysForward = overrides.HomeworkDaysForward
	}
	if overrides.ScheduleType != nil {
		merged.ScheduleType = overrides.ScheduleType
	}
	if overrides.ScheduleTime != nil {
		merged.ScheduleTime = overrides.ScheduleTime
	}
	if overrides.ScheduleDays != nil {
		merged.ScheduleDays = overrides.ScheduleDays
	}
	if overrides.ScheduleInterval != nil {
		merged.ScheduleInterval = overrides.ScheduleInterval
	}
	if overrides.MaxItemsInAttributes != nil {
		merged.MaxItemsInAttributes = overrides.MaxItemsInAttributes
	}
	return merged
}

// SanitizeOptions resolves merged options into the effective set. Every
// invalid field falls back to its default independently and the fallback is
// logged.
func SanitizeOptions(opts models.InstanceOptions, logger *zap.Logger) models.EffectiveOptions {
	if logger == nil {
		logger = zap.NewNop()
	}
	eff := models.EffectiveOptions{
		HomeworkDaysBack:     DefaultHomeworkDaysBack,
		HomeworkDaysForward:  DefaultHomeworkDaysForward,
		MaxItemsInAttributes: DefaultMaxItems,
		Schedule: models.ScheduleConfig{
			Type:            DefaultScheduleType,
			Time:            DefaultScheduleTime,
			Days:            []int{DefaultScheduleDay},
			IntervalMinutes: DefaultScheduleInterval,
		},
	}

	if v := opts.HomeworkDaysBack; v != nil {
		if *v >= 0 && *v <= MaxHomeworkDaysBack {
			eff.HomeworkDaysBack = *v
		} else {
			logger.Warn("homework_days_back out of range, using default", zap.Int("value", *v), zap.Int("default", DefaultHomeworkDaysBack))
		}
	}
	if v := opts.HomeworkDaysForward; v != nil {
		if *v >= MinHomeworkDaysForward && *v <= MaxHomeworkDaysForward {
			eff.HomeworkDaysForward = *v
		} else {
			logger.Warn("homework_days_forward out of range, using default", zap.Int("value", *v), zap.Int("default", DefaultHomeworkDaysForward))
		}
	}
	if v := opts.MaxItemsInAttributes; v != nil {
		eff.MaxItemsInAttributes = ClampMaxItems(*v)
		if eff.MaxItemsInAttributes != *v {
			logger.Warn("max_items_in_attributes clamped", zap.Int("value", *v), zap.Int("effective", eff.MaxItemsInAttributes))
		}
	}

	if v := opts.ScheduleType; v != nil {
		switch t := models.ScheduleType(strings.ToLower(strings.TrimSpace(*v))); t {
		case models.ScheduleDaily, models.ScheduleWeekly, models.ScheduleInterval:
			eff.Schedule.Type = t
		default:
			logger.Warn("unknown schedule_type, using default", zap.String("value", *v), zap.String("default", string(DefaultScheduleType)))
		}
	}

	hour, minute, _ := ParseClock(DefaultScheduleTime)
	if v := opts.ScheduleTime; v != nil {
		if h, m, err := ParseClock(*v); err == nil {
			hour, minute = h, m
		} else {
			logger.Warn("invalid schedule_time, using default", zap.String("value", *v), zap.String("default", DefaultScheduleTime), zap.Error(err))
		}
	}
	eff.Schedule.Hour, eff.Schedule.Minute = hour, minute
	eff.Schedule.Time = fmt.Sprintf("%02d:%02d", hour, minute)

	if v := opts.ScheduleInterval; v != nil {
		if *v >= MinScheduleInterval && *v <= MaxScheduleInterval {
			eff.Schedule.IntervalMinutes = *v
		} else {
			logger.Warn("schedule_interval out of range, using default", zap.Int("value", *v), zap.Int("default", DefaultScheduleInterval))
		}
	}

	if opts.ScheduleDays != nil {
		seen := make(map[int]struct{}, len(opts.ScheduleDays))
		days := make([]int, 0, len(opts.ScheduleDays))
		for _, d := range opts.ScheduleDays {
			if d < 0 || d > 6 {
				logger.Warn("dropping schedule day out of range", zap.Int("value", d))
				continue
			}
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			days = append(days, d)
		}
		if len(days) == 0 {
			logger.Warn("no valid schedule days, using default", zap.Int("default", DefaultScheduleDay))
			days = []int{DefaultScheduleDay}
		}
		sort.Ints(days)
		eff.Schedule.Days = days
	}

	return eff
}

// ResolveOptions merges and sanitizes the options of a definition.
func ResolveOptions(def models.InstanceDefinition, logger *zap.Logger) models.EffectiveOptions {
	return SanitizeOptions(MergeOptions(def.Options, def.Overrides), logger)
}

// ParseClock parses a 24h "HH:MM" string.
func ParseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("parse clock %q: %w", value, err)
	}
	return t.Hour(), t.Minute(), nil
}

// ClampMaxItems bounds the per-sensor item count.
func ClampMaxItems(n int) int {
	switch {
	case n < MinMaxItems:
		return MinMaxItems
	case n > MaxMaxItems:
		return MaxMaxItems
	default:
		return n
	}
}
