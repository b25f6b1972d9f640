// Package validate holds the stateless field validators shared by the import
// engine and direct-entry collaborators. Each validator is a pure predicate
// returning nil on pass or an Issue carrying the constraint and the fixed
// human-readable reason string from the project brief. Validators never
// mutate and never touch the store.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Issue describes one failed field constraint.
type Issue struct {
	Field      string `json:"field"`
	Value      any    `json:"value"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Report collects the issues found in one candidate record. A record is
// rejected iff its report is non-empty.
type Report []Issue

// OK reports whether the record passed every constraint.
func (r Report) OK() bool { return len(r) == 0 }

func (r Report) Error() string {
	if len(r) == 0 {
		return "valid"
	}
	parts := make([]string, len(r))
	for i, issue := range r {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

var (
	subjectIDPattern = regexp.MustCompile(`^[A-Z]+_\d{2}_\d{2}$`)
	cohortIDPattern  = regexp.MustCompile(`^[A-Z]+_\d{2}$`)
	projectPattern   = regexp.MustCompile(`^[A-Z]+$`)
)

// SubjectID validates the PROJECT_NN_NN subject id format.
func SubjectID(value string) *Issue {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return &Issue{Field: "subject_id", Value: value, Constraint: `^[A-Z]+_\d{2}_\d{2}$`, Message: "Subject ID is required"}
	}
	if !subjectIDPattern.MatchString(v) {
		return &Issue{Field: "subject_id", Value: value, Constraint: `^[A-Z]+_\d{2}_\d{2}$`,
			Message: fmt.Sprintf("Subject ID must be format XXX_NN_NN (e.g., CNT_05_01), got: %s", v)}
	}
	return nil
}

// CohortID validates the PROJECT_NN cohort id format.
func CohortID(value string) *Issue {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return &Issue{Field: "cohort_id", Value: value, Constraint: `^[A-Z]+_\d{2}$`, Message: "Cohort ID is required"}
	}
	if !cohortIDPattern.MatchString(v) {
		return &Issue{Field: "cohort_id", Value: value, Constraint: `^[A-Z]+_\d{2}$`,
			Message: fmt.Sprintf("Cohort ID must be format XXX_NN (e.g., CNT_05), got: %s", v)}
	}
	return nil
}

// ProjectCode validates the uppercase project code format.
func ProjectCode(value string) *Issue {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return &Issue{Field: "project_code", Value: value, Constraint: `^[A-Z]+$`, Message: "Project code is required"}
	}
	if !projectPattern.MatchString(v) {
		return &Issue{Field: "project_code", Value: value, Constraint: `^[A-Z]+$`,
			Message: fmt.Sprintf("Project code must be uppercase letters only (e.g., CNT), got: %s", v)}
	}
	return nil
}

// Score validates a pellet score.
func Score(value int) *Issue {
	if value != 0 && value != 1 && value != 2 {
		return &Issue{Field: "score", Value: value, Constraint: "score in {0,1,2}",
			Message: fmt.Sprintf("Score must be 0 (miss), 1 (displaced), or 2 (retrieved), got: %d", value)}
	}
	return nil
}

// TrayNumber validates a tray index.
func TrayNumber(value int) *Issue {
	if value < 1 || value > 4 {
		return &Issue{Field: "tray", Value: value, Constraint: "tray in [1,4]",
			Message: fmt.Sprintf("Tray number must be 1-4, got: %d", value)}
	}
	return nil
}

// PelletNumber validates a pellet index within a tray.
func PelletNumber(value int) *Issue {
	if value < 1 || value > 20 {
		return &Issue{Field: "pellet", Value: value, Constraint: "pellet in [1,20]",
			Message: fmt.Sprintf("Pellet number must be 1-20, got: %d", value)}
	}
	return nil
}

// Weight validates a weight measurement in grams. The bounds are sanity
// limits for an adult mouse; out-of-range values are almost always unit or
// transcription errors.
func Weight(value float64) *Issue {
	switch {
	case value <= 0:
		return &Issue{Field: "weight", Value: value, Constraint: "weight in [10,50]",
			Message: fmt.Sprintf("Weight must be positive, got: %g", value)}
	case value >= 100:
		return &Issue{Field: "weight", Value: value, Constraint: "weight in [10,50]",
			Message: fmt.Sprintf("Weight must be less than 100g (check units), got: %g", value)}
	case value < 10:
		return &Issue{Field: "weight", Value: value, Constraint: "weight in [10,50]",
			Message: fmt.Sprintf("Weight seems too low (check units), got: %gg", value)}
	case value > 50:
		return &Issue{Field: "weight", Value: value, Constraint: "weight in [10,50]",
			Message: fmt.Sprintf("Weight seems too high for a mouse, got: %gg", value)}
	}
	return nil
}

// Sex validates the sex field. Empty is allowed: the field is optional.
func Sex(value string) *Issue {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return nil
	}
	if v != "M" && v != "F" {
		return &Issue{Field: "sex", Value: value, Constraint: "sex in {M,F}",
			Message: fmt.Sprintf("Sex must be M or F, got: %s", v)}
	}
	return nil
}

// TrayKind validates the tray difficulty class carried in the legacy
// "Tray Type/Number" column.
func TrayKind(value string) *Issue {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v != "E" && v != "F" && v != "P" {
		return &Issue{Field: "tray_kind", Value: value, Constraint: "tray kind in {E,F,P}",
			Message: fmt.Sprintf("Tray type must be E (easy), F (flat), or P (pillar), got: %s", v)}
	}
	return nil
}

// SurgeryKind validates the surgery type field.
func SurgeryKind(value string) *Issue {
	v := strings.ToLower(strings.TrimSpace(value))
	if v != "contusion" && v != "tracing" && v != "perfusion" {
		return &Issue{Field: "surgery_kind", Value: value, Constraint: "surgery kind in {contusion,tracing,perfusion}",
			Message: fmt.Sprintf("Surgery type must be one of (contusion, tracing, perfusion), got: %s", v)}
	}
	return nil
}

// Required reports a missing mandatory field.
func Required(field string) *Issue {
	return &Issue{Field: field, Constraint: "required", Message: fmt.Sprintf("Missing required field: %s", field)}
}
