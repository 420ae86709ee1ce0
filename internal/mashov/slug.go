package mashov

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Slugify lowercases text, keeps letters and digits, and turns spaces, dashes
// and underscores into single underscores. The result may be empty.
func Slugify(text string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}

// studentSlug returns a non-empty slug for a student, unique within taken.
func studentSlug(name, id string, taken map[string]struct{}) string {
	slug := Slugify(name)
	if slug == "" {
		if idSlug := Slugify(id); idSlug != "" {
			slug = "student_" + idSlug
		} else {
			slug = "student_" + uuid.NewString()[:8]
		}
	}
	candidate := slug
	for n := 2; ; n++ {
		if _, exists := taken[candidate]; !exists {
			break
		}
		candidate = slug + "_" + strconv.Itoa(n)
	}
	taken[candidate] = struct{}{}
	return candidate
}

// DefaultYear returns the academic year number for t. The year rolls over in
// September: August 2024 is year 2024, September 2024 is year 2025.
func DefaultYear(t time.Time) int {
	if t.Month() >= time.September {
		return t.Year() + 1
	}
	return t.Year()
}
