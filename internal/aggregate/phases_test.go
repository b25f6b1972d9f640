package aggregate

import (
	"math"
	"testing"
)

func TestPhaseGroup(t *testing.T) {
	cases := map[string]string{
		"Training_Flat_3":      "Flat Training",
		"Training_Pillar_1":    "Pillar Training",
		"Pre-Injury_Test_2":    "Last 3",
		"Post-Injury_Test_1":   "Post injury 1",
		"Post-Injury_Test_2":   "Post Injury 2-4",
		"Post-Injury_Test_4":   "Post Injury 2-4",
		"Rehab_Easy_5":         "Rehab Easy",
		"Rehab_Flat_2":         "Rehab Flat",
		"Rehab_Pillar_1":       "Rehab Pillar",
		"Flat Training Day 2":  "Flat Training",
		"Pre-Injury Test 1":    "Last 3",
		"Post-Injury Test 3":   "Post Injury 2-4",
		"Rehab Pillar Week 2":  "Rehab Pillar",
		"Rehab_Week_3":         "Rehab", // generic rehab, not split by tray
		"Open Field":           "Unknown",
		"":                     "Unknown",
		"Post-Injury_Test_1_b": "Post injury 1", // longest prefix wins
	}
	for phase, want := range cases {
		if got := PhaseGroup(phase); got != want {
			t.Errorf("PhaseGroup(%q) = %q, want %q", phase, got, want)
		}
	}
}

func TestGroupByPhaseMeansAndUnknownExclusion(t *testing.T) {
	sessions := []SessionStats{
		{Phase: "Rehab_Flat_1", Trays: []TrayStats{{Presented: 10, Retrieved: 8, Displaced: 1}}},
		{Phase: "Rehab_Flat_2", Trays: []TrayStats{{Presented: 10, Retrieved: 4, Displaced: 2}}},
		{Phase: "Mystery", Trays: []TrayStats{{Presented: 10, Retrieved: 10}}},
	}
	groups := GroupByPhase(sessions)
	if _, ok := groups["Unknown"]; ok {
		t.Fatal("unknown phases must be excluded")
	}
	flat, ok := groups["Rehab Flat"]
	if !ok {
		t.Fatalf("missing group, got %v", groups)
	}
	if flat.Sessions != 2 {
		t.Fatalf("sessions in group: %d", flat.Sessions)
	}
	// Mean of 80% and 40%.
	if math.Abs(flat.RetrievedPct-60.0) > 1e-9 {
		t.Fatalf("retrieved mean: %v", flat.RetrievedPct)
	}
	// Mean of 90% and 60%.
	if math.Abs(flat.ContactedPct-75.0) > 1e-9 {
		t.Fatalf("contacted mean: %v", flat.ContactedPct)
	}
}
