package models

// Student is a child linked to the authenticated parent account.
type Student struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"name"`
	Slug        string   `json:"slug"`
	ClassCode   *string  `json:"class_code,omitempty"`
	ClassNumber *int     `json:"class_num,omitempty"`
	GroupIDs    []string `json:"group_ids,omitempty"`
}

// StudentSummary is the student entry published with every refresh result.
type StudentSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	ClassCode   *string `json:"class_code,omitempty"`
	ClassNumber *int    `json:"class_num,omitempty"`
	Year        int     `json:"year"`
	SchoolID    int     `json:"school_id"`
}

// Summary projects the student into its published form.
func (s Student) Summary(schoolID, year int) StudentSummary {
	return StudentSummary{
		ID:          s.ID,
		Name:        s.DisplayName,
		Slug:        s.Slug,
		ClassCode:   s.ClassCode,
		ClassNumber: s.ClassNumber,
		Year:        year,
		SchoolID:    schoolID,
	}
}
