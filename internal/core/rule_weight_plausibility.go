package core

import (
	"context"
	"fmt"

	"mousedb/pkg/domain"
)

// NewWeightPlausibilityRule returns the in-transaction rule guarding weight
// records. Impossible values block; implausible-but-possible values warn so a
// transcription slip is visible without stopping an import of good data
// around it.
func NewWeightPlausibilityRule() domain.Rule {
	return weightPlausibilityRule{}
}

type weightPlausibilityRule struct{}

func (weightPlausibilityRule) Name() string { return "weight_plausibility" }

func (weightPlausibilityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, w := range view.ListWeights() {
		id := w.NaturalKey().ID
		switch {
		case w.Grams <= 0 || w.Grams >= 100:
			res.Violations = append(res.Violations, violation(
				"weight_plausibility", domain.EntityWeight, id,
				fmt.Sprintf("weight %s of %gg is impossible for a mouse", id, w.Grams)))
		case w.Grams < 10 || w.Grams > 50:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "weight_plausibility",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("weight %s of %gg is outside the expected 10-50g range", id, w.Grams),
				Entity:   domain.EntityWeight,
				EntityID: id,
			})
		}
		if _, ok := view.FindSubject(w.SubjectID); !ok {
			res.Violations = append(res.Violations, violation(
				"weight_plausibility", domain.EntityWeight, id,
				fmt.Sprintf("weight %s references missing subject %s", id, w.SubjectID)))
		}
	}
	return res, nil
}
