package service

import (
	"sort"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// AttributeByteBudget is the serialized size ceiling of one published item list.
const AttributeByteBudget = 14 * 1024

const fallbackItemCount = 40

// Technical fields removed from published items, at the top level and inside nestedObjects.
var strippedFields = map[string]struct{}{
	"student_guid":     {},
	"studentGuid":      {},
	"event_code":       {},
	"achva_code":       {},
	"justification_id": {},
	"lesson_id":        {},
	"lessonId":         {},
	"group_id":         {},
	"groupId":          {},
	"reporter_guid":    {},
	"reporterGuid":     {},
	"teacherGuid":      {},
}

var nestedObjects = []string{"timeTable", "groupDetails", "lessonLog"}

var dateFields = []string{"lesson_date", "lessonDate", "date", "start", "event_date"}

// AttributeLimiter bounds item lists handed to the state sink.
type AttributeLimiter struct {
	budget int
	logger *zap.Logger
	encode func(any) ([]byte, error)
}

// NewAttributeLimiter builds a limiter with the default byte budget.
func NewAttributeLimiter(logger *zap.Logger) *AttributeLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttributeLimiter{budget: AttributeByteBudget, logger: logger, encode: json.Marshal}
}

// Limit strips technical fields from items, orders them newest first and
// returns the longest prefix of at most maxItems items whose serialized form
// fits the byte budget. items must be a slice of JSON-encodable records.
func (l *AttributeLimiter) Limit(items any, maxItems int) []map[string]any {
	cleaned := l.toMaps(items)
	if len(cleaned) == 0 {
		return []map[string]any{}
	}
	for _, item := range cleaned {
		stripTechnicalFields(item)
	}
	sortByRecency(cleaned)

	n := ClampMaxItems(maxItems)
	if n > len(cleaned) {
		n = len(cleaned)
	}
	candidate := cleaned[:n]

	count, err := l.fit(candidate)
	if err != nil {
		l.logger.Warn("size probing failed, using fallback item count", zap.Int("fallback", fallbackItemCount), zap.Error(err))
		count = fallbackItemCount
		if count > len(cleaned) {
			count = len(cleaned)
		}
		return cleaned[:count]
	}
	return candidate[:count]
}

// fit binary-searches the largest prefix length whose encoding fits the budget.
func (l *AttributeLimiter) fit(items []map[string]any) (int, error) {
	fits := func(k int) (bool, error) {
		raw, err := l.encode(items[:k])
		if err != nil {
			return false, err
		}
		return len(raw) <= l.budget, nil
	}

	ok, err := fits(len(items))
	if err != nil {
		return 0, err
	}
	if ok {
		return len(items), nil
	}

	lo, hi := 0, len(items)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		ok, err := fits(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

func (l *AttributeLimiter) toMaps(items any) []map[string]any {
	if items == nil {
		return nil
	}
	raw, err := l.encode(items)
	if err != nil {
		l.logger.Warn("encode items for publication failed", zap.Error(err))
		return nil
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		l.logger.Warn("items are not a list of objects", zap.Error(err))
		return nil
	}
	return out
}

func stripTechnicalFields(item map[string]any) {
	for key := range item {
		if _, strip := strippedFields[key]; strip {
			delete(item, key)
		}
	}
	for _, key := range nestedObjects {
		stripNested(item[key])
	}
}

func stripNested(value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, inner := range v {
			if _, strip := strippedFields[key]; strip {
				delete(v, key)
				continue
			}
			stripNested(inner)
		}
	case []any:
		for _, inner := range v {
			stripNested(inner)
		}
	}
}

// sortByRecency puts dated items first, newest first, and orders undated
// recurring items by day then lesson number.
func sortByRecency(items []map[string]any) {
	sort.SliceStable(items, func(i, j int) bool {
		di, okI := itemDate(items[i])
		dj, okJ := itemDate(items[j])
		switch {
		case okI && okJ:
			return di > dj
		case okI != okJ:
			return okI
		}
		dayI, lessonI := slotOrder(items[i])
		dayJ, lessonJ := slotOrder(items[j])
		if dayI != dayJ {
			return dayI < dayJ
		}
		return lessonI < lessonJ
	})
}

func itemDate(item map[string]any) (string, bool) {
	for _, key := range dateFields {
		if s, ok := item[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func slotOrder(item map[string]any) (float64, float64) {
	source := item
	if slot, ok := item["timeTable"].(map[string]any); ok {
		source = slot
	}
	day, okDay := source["day"].(float64)
	if !okDay {
		day = 99
	}
	lesson, okLesson := source["lesson"].(float64)
	if !okLesson {
		lesson = 99
	}
	return day, lesson
}
