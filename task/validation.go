package task

import (
	"strings"
	"time"
)

// MaxTitleLength is the maximum allowed length for a task title.
const MaxTitleLength = 60

// DeadlineLayout is the wire format of Task.Deadline.
const DeadlineLayout = "2006-01-02"

// Validate checks the descriptive fields of a task payload and returns
// messages keyed by JSON field, or nil when the payload is acceptable.
func (t Task) Validate() map[string][]string {
	errs := map[string][]string{}
	add := func(field, msg string) {
		errs[field] = append(errs[field], msg)
	}

	title := strings.TrimSpace(t.Title)
	switch {
	case title == "":
		add("title", "This field is required.")
	case len(title) > MaxTitleLength:
		add("title", "Ensure this field has no more than 60 characters.")
	}
	if !t.GenderLimit.Valid() {
		add("gender_limit", `"`+string(t.GenderLimit)+`" is not a valid choice.`)
	}
	if t.AgeLimitFrom != nil && *t.AgeLimitFrom < 0 {
		add("age_limit_from", "Ensure this value is greater than or equal to 0.")
	}
	if t.AgeLimitTo != nil && *t.AgeLimitTo < 0 {
		add("age_limit_to", "Ensure this value is greater than or equal to 0.")
	}
	if t.AgeLimitFrom != nil && t.AgeLimitTo != nil && *t.AgeLimitFrom > *t.AgeLimitTo {
		add("age_limit_to", "Must be greater than or equal to age_limit_from.")
	}
	if t.Deadline != "" {
		if _, err := time.Parse(DeadlineLayout, t.Deadline); err != nil {
			add("deadline", "Date has wrong format. Use YYYY-MM-DD.")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
