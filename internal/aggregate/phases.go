package aggregate

import "sort"

// PhaseGroups is the canonical ordering of summary phase groups used by the
// calculated-stats layout.
var PhaseGroups = []string{
	"Flat Training",
	"Pillar Training",
	"Last 3",
	"Post injury 1",
	"Post Injury 2-4",
	"Rehab Easy",
	"Rehab Flat",
	"Rehab Pillar",
}

// phasePrefixes maps test-phase label prefixes to summary group names. Both
// the underscore style ("Training_Flat_1") and the space style
// ("Flat Training Day 1") appear in historical data; the bare "Rehab_" entry
// catches cohorts whose rehab phases are not split by tray type.
var phasePrefixes = map[string]string{
	"Training_Flat":      "Flat Training",
	"Training_Pillar":    "Pillar Training",
	"Pre-Injury_Test":    "Last 3",
	"Post-Injury_Test_1": "Post injury 1",
	"Post-Injury_Test_2": "Post Injury 2-4",
	"Post-Injury_Test_3": "Post Injury 2-4",
	"Post-Injury_Test_4": "Post Injury 2-4",
	"Rehab_Easy":         "Rehab Easy",
	"Rehab_Flat":         "Rehab Flat",
	"Rehab_Pillar":       "Rehab Pillar",

	"Flat Training":      "Flat Training",
	"Pillar Training":    "Pillar Training",
	"Pre-Injury Test":    "Last 3",
	"Post-Injury Test 1": "Post injury 1",
	"Post-Injury Test 2": "Post Injury 2-4",
	"Post-Injury Test 3": "Post Injury 2-4",
	"Post-Injury Test 4": "Post Injury 2-4",
	"Rehab Easy":         "Rehab Easy",
	"Rehab Flat":         "Rehab Flat",
	"Rehab Pillar":       "Rehab Pillar",

	"Rehab_": "Rehab",
}

// orderedPrefixes holds the prefix keys longest-first, so the most specific
// prefix wins ("Post-Injury_Test_1" before "Post-Injury_Test").
var orderedPrefixes = func() []string {
	keys := make([]string, 0, len(phasePrefixes))
	for k := range phasePrefixes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// PhaseGroup maps an individual test-phase label to its summary group.
// Unmatched or empty labels map to "Unknown".
func PhaseGroup(phase string) string {
	if phase == "" {
		return "Unknown"
	}
	for _, prefix := range orderedPrefixes {
		if len(phase) >= len(prefix) && phase[:len(prefix)] == prefix {
			return phasePrefixes[prefix]
		}
	}
	return "Unknown"
}

// PhaseGroupStats is the mean session performance within one phase group.
// Percentages are means of the pooled per-session percentages; WeightPct
// averages only the sessions where it is defined.
type PhaseGroupStats struct {
	Group        string  `json:"group"`
	Sessions     int     `json:"sessions"`
	Presented    int     `json:"presented"`
	MissPct      float64 `json:"miss_pct"`
	DisplacedPct float64 `json:"displaced_pct"`
	RetrievedPct float64 `json:"retrieved_pct"`
	ContactedPct float64 `json:"contacted_pct"`
	WeightPct    float64 `json:"weight_pct"`
}

// GroupByPhase buckets sessions by their phase group and returns the mean of
// the pooled session percentages per group. Sessions whose phase maps to
// "Unknown" are excluded.
func GroupByPhase(sessions []SessionStats) map[string]PhaseGroupStats {
	type acc struct {
		n         int
		presented int
		miss      float64
		displaced float64
		retrieved float64
		contacted float64
		weight    float64
		weightN   int
	}
	buckets := map[string]*acc{}
	for _, sess := range sessions {
		group := PhaseGroup(sess.Phase)
		if group == "Unknown" {
			continue
		}
		a, ok := buckets[group]
		if !ok {
			a = &acc{}
			buckets[group] = a
		}
		a.n++
		a.presented += sess.Presented()
		a.miss += sess.MissPct()
		a.displaced += sess.DisplacedPct()
		a.retrieved += sess.RetrievedPct()
		a.contacted += sess.ContactedPct()
		if wp := sess.WeightPct(); wp != nil {
			a.weight += *wp
			a.weightN++
		}
	}
	out := make(map[string]PhaseGroupStats, len(buckets))
	for group, a := range buckets {
		stats := PhaseGroupStats{
			Group:        group,
			Sessions:     a.n,
			Presented:    a.presented,
			MissPct:      a.miss / float64(a.n),
			DisplacedPct: a.displaced / float64(a.n),
			RetrievedPct: a.retrieved / float64(a.n),
			ContactedPct: a.contacted / float64(a.n),
		}
		if a.weightN > 0 {
			stats.WeightPct = a.weight / float64(a.weightN)
		}
		out[group] = stats
	}
	return out
}
