package core

import (
	"context"
	"fmt"

	"mousedb/pkg/domain"
)

// NewSurgeryCardinalityRule returns the in-transaction rule enforcing surgery
// invariants: at most one contusion and one perfusion per subject, subject
// references resolve, and contusion parameters are non-negative when present.
func NewSurgeryCardinalityRule() domain.Rule {
	return surgeryCardinalityRule{}
}

type surgeryCardinalityRule struct{}

func (surgeryCardinalityRule) Name() string { return "surgery_cardinality" }

func (surgeryCardinalityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	contusions := map[string]int{}
	perfusions := map[string]int{}
	for _, s := range view.ListSurgeries() {
		id := s.NaturalKey().ID
		switch s.Kind {
		case domain.SurgeryContusion:
			contusions[s.SubjectID]++
		case domain.SurgeryPerfusion:
			perfusions[s.SubjectID]++
		case domain.SurgeryTracing:
		default:
			res.Violations = append(res.Violations, violation(
				"surgery_cardinality", domain.EntitySurgery, id,
				fmt.Sprintf("surgery %s has unknown kind %q", id, s.Kind)))
		}
		if _, ok := view.FindSubject(s.SubjectID); !ok {
			res.Violations = append(res.Violations, violation(
				"surgery_cardinality", domain.EntitySurgery, id,
				fmt.Sprintf("surgery %s references missing subject %s", id, s.SubjectID)))
		}
		for name, v := range map[string]*float64{
			"force_kdyn":      s.ForceKDyn,
			"displacement_um": s.DisplacementUm,
			"velocity_mm_s":   s.VelocityMmS,
			"dwell_time_s":    s.DwellTimeS,
			"volume_nl":       s.VolumeNL,
		} {
			if v != nil && *v < 0 {
				res.Violations = append(res.Violations, violation(
					"surgery_cardinality", domain.EntitySurgery, id,
					fmt.Sprintf("surgery %s has negative %s %g", id, name, *v)))
			}
		}
	}
	for subject, n := range contusions {
		if n > 1 {
			res.Violations = append(res.Violations, violation(
				"surgery_cardinality", domain.EntitySurgery, subject,
				fmt.Sprintf("subject %s has %d contusion records, at most one allowed", subject, n)))
		}
	}
	for subject, n := range perfusions {
		if n > 1 {
			res.Violations = append(res.Violations, violation(
				"surgery_cardinality", domain.EntitySurgery, subject,
				fmt.Sprintf("subject %s has %d perfusion records, at most one allowed", subject, n)))
		}
	}
	return res, nil
}
