package core

import (
	"context"
	"fmt"

	"mousedb/pkg/domain"
)

// NewTrialIntegrityRule returns the in-transaction rule enforcing pellet
// trial invariants: score domain, slot bounds, and session/subject
// references. Trials are keyed by (subject, date, tray, pellet), so slot
// uniqueness is structural; this rule guards everything the key cannot.
func NewTrialIntegrityRule() domain.Rule {
	return trialIntegrityRule{}
}

type trialIntegrityRule struct{}

func (trialIntegrityRule) Name() string { return "trial_integrity" }

func (trialIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, trial := range view.ListTrials() {
		id := trial.NaturalKey().ID
		if trial.Score != domain.ScoreMiss && trial.Score != domain.ScoreDisplaced && trial.Score != domain.ScoreRetrieved {
			res.Violations = append(res.Violations, violation(
				"trial_integrity", domain.EntityTrial, id,
				fmt.Sprintf("trial %s has score %d outside {0,1,2}", id, trial.Score)))
		}
		if trial.Tray < 1 || trial.Tray > 4 {
			res.Violations = append(res.Violations, violation(
				"trial_integrity", domain.EntityTrial, id,
				fmt.Sprintf("trial %s has tray %d outside 1-4", id, trial.Tray)))
		}
		if trial.Pellet < 1 || trial.Pellet > 20 {
			res.Violations = append(res.Violations, violation(
				"trial_integrity", domain.EntityTrial, id,
				fmt.Sprintf("trial %s has pellet %d outside 1-20", id, trial.Pellet)))
		}
		if _, ok := view.FindSubject(trial.SubjectID); !ok {
			res.Violations = append(res.Violations, violation(
				"trial_integrity", domain.EntityTrial, id,
				fmt.Sprintf("trial %s references missing subject %s", id, trial.SubjectID)))
		}
		if _, ok := view.FindSession(trial.SubjectID, trial.Date); !ok {
			res.Violations = append(res.Violations, violation(
				"trial_integrity", domain.EntityTrial, id,
				fmt.Sprintf("trial %s has no session for %s on %s", id, trial.SubjectID, trial.Date.Format(domain.DateLayout))))
		}
	}
	return res, nil
}

func violation(rule string, entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
	}
}
