package core

import (
	"context"
	"fmt"

	"mousedb/pkg/domain"
)

// NewSubjectIdentityRule returns the in-transaction rule enforcing subject id
// format, cohort id format, and subject-to-cohort references.
func NewSubjectIdentityRule() domain.Rule {
	return subjectIdentityRule{}
}

type subjectIdentityRule struct{}

func (subjectIdentityRule) Name() string { return "subject_identity" }

func (subjectIdentityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, cohort := range view.ListCohorts() {
		if !domain.ValidCohortID(cohort.ID) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "subject_identity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cohort id %q does not match PROJECT_NN", cohort.ID),
				Entity:   domain.EntityCohort,
				EntityID: cohort.ID,
			})
		}
	}
	for _, subject := range view.ListSubjects() {
		if !domain.ValidSubjectID(subject.ID) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "subject_identity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("subject id %q does not match PROJECT_NN_NN", subject.ID),
				Entity:   domain.EntitySubject,
				EntityID: subject.ID,
			})
			continue
		}
		derived, err := domain.DeriveCohortID(subject.ID)
		if err == nil && subject.CohortID != derived {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "subject_identity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("subject %s assigned to cohort %s, id implies %s", subject.ID, subject.CohortID, derived),
				Entity:   domain.EntitySubject,
				EntityID: subject.ID,
			})
		}
		if _, ok := view.FindCohort(subject.CohortID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "subject_identity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("subject %s references missing cohort %s", subject.ID, subject.CohortID),
				Entity:   domain.EntitySubject,
				EntityID: subject.ID,
			})
		}
	}
	return res, nil
}
