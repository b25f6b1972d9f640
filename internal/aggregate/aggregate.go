// Package aggregate computes derived per-tray, per-session, and per-subject
// statistics from canonical state. Nothing here is persisted: every value is
// recomputed from the snapshot it is handed, so derived numbers cannot drift
// from source data.
package aggregate

import (
	"sort"
	"time"

	"mousedb/pkg/domain"
)

// TrayStats holds pellet-outcome counts for one tray of one session.
// Presented is the count of scored slots, not the tray's physical capacity:
// a tray with 15 scored pellets has Presented == 15 and percentages are
// computed against 15.
type TrayStats struct {
	Kind      domain.TrayKind `json:"kind"`
	Tray      int             `json:"tray"`
	Presented int             `json:"presented"`
	Miss      int             `json:"miss"`
	Displaced int             `json:"displaced"`
	Retrieved int             `json:"retrieved"`
}

// Contacted is the count of pellets touched (displaced + retrieved).
func (t TrayStats) Contacted() int { return t.Displaced + t.Retrieved }

func pct(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// MissPct is the miss percentage of presented pellets.
func (t TrayStats) MissPct() float64 { return pct(t.Miss, t.Presented) }

// DisplacedPct is the displaced percentage of presented pellets.
func (t TrayStats) DisplacedPct() float64 { return pct(t.Displaced, t.Presented) }

// RetrievedPct is the retrieved percentage of presented pellets.
func (t TrayStats) RetrievedPct() float64 { return pct(t.Retrieved, t.Presented) }

// ContactedPct is the contacted percentage of presented pellets.
func (t TrayStats) ContactedPct() float64 { return pct(t.Contacted(), t.Presented) }

// SessionStats holds one day's derived statistics for a subject.
type SessionStats struct {
	SubjectID string      `json:"subject_id"`
	Date      time.Time   `json:"date"`
	Phase     string      `json:"phase"`
	Trays     []TrayStats `json:"trays"`

	// WeightGrams is the weight on the session date or the nearest prior
	// record; nil when no record exists at or before the date.
	WeightGrams *float64 `json:"weight_grams,omitempty"`
	// BaselineWeight is the subject's earliest recorded weight.
	BaselineWeight *float64 `json:"baseline_weight,omitempty"`
	// MissingWeight reports why weight-derived fields are undefined. It is
	// informational: the session stats remain valid without them.
	MissingWeight *domain.NoWeightDataError `json:"-"`

	// InjuryDate is the subject's contusion date, nil without a contusion
	// record.
	InjuryDate *time.Time `json:"injury_date,omitempty"`
}

// Presented is the daily presented total across trays.
func (s SessionStats) Presented() int { return s.sum(func(t TrayStats) int { return t.Presented }) }

// Miss is the daily miss total across trays.
func (s SessionStats) Miss() int { return s.sum(func(t TrayStats) int { return t.Miss }) }

// Displaced is the daily displaced total across trays.
func (s SessionStats) Displaced() int { return s.sum(func(t TrayStats) int { return t.Displaced }) }

// Retrieved is the daily retrieved total across trays.
func (s SessionStats) Retrieved() int { return s.sum(func(t TrayStats) int { return t.Retrieved }) }

// Contacted is the daily contacted total across trays.
func (s SessionStats) Contacted() int { return s.sum(func(t TrayStats) int { return t.Contacted() }) }

func (s SessionStats) sum(f func(TrayStats) int) int {
	total := 0
	for _, t := range s.Trays {
		total += f(t)
	}
	return total
}

// Pooled daily percentages: totals normalized by the daily presented count.

func (s SessionStats) MissPct() float64      { return pct(s.Miss(), s.Presented()) }
func (s SessionStats) DisplacedPct() float64 { return pct(s.Displaced(), s.Presented()) }
func (s SessionStats) RetrievedPct() float64 { return pct(s.Retrieved(), s.Presented()) }
func (s SessionStats) ContactedPct() float64 { return pct(s.Contacted(), s.Presented()) }

// Tray-averaged percentages: the mean of the per-tray percentages. This is a
// different number than the pooled percentage when trays have unequal
// presented counts, and the legacy calculated-stats format requires the
// averaged value.

func (s SessionStats) AvgMissPct() float64 {
	return s.avg(func(t TrayStats) float64 { return t.MissPct() })
}

func (s SessionStats) AvgDisplacedPct() float64 {
	return s.avg(func(t TrayStats) float64 { return t.DisplacedPct() })
}

func (s SessionStats) AvgRetrievedPct() float64 {
	return s.avg(func(t TrayStats) float64 { return t.RetrievedPct() })
}

func (s SessionStats) AvgContactedPct() float64 {
	return s.avg(func(t TrayStats) float64 { return t.ContactedPct() })
}

func (s SessionStats) avg(f func(TrayStats) float64) float64 {
	if len(s.Trays) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range s.Trays {
		total += f(t)
	}
	return total / float64(len(s.Trays))
}

// WeightPct is the session weight as a percentage of the baseline weight,
// nil when either is unavailable.
func (s SessionStats) WeightPct() *float64 {
	if s.WeightGrams == nil || s.BaselineWeight == nil || *s.BaselineWeight <= 0 {
		return nil
	}
	v := *s.WeightGrams / *s.BaselineWeight * 100
	return &v
}

// DaysPostInjury is the session date minus the contusion date. It is nil,
// not zero, when the subject has no contusion record; sessions before the
// contusion yield negative values.
func (s SessionStats) DaysPostInjury() *int {
	if s.InjuryDate == nil {
		return nil
	}
	days := int(s.Date.Sub(*s.InjuryDate).Hours() / 24)
	return &days
}

// Session computes the derived statistics for one (subject, date) session
// from the given snapshot.
func Session(view domain.TransactionView, subjectID string, date time.Time) (SessionStats, error) {
	if _, ok := view.FindSubject(subjectID); !ok {
		return SessionStats{}, domain.ErrNotFound{Entity: domain.EntitySubject, ID: subjectID}
	}
	stats := SessionStats{SubjectID: subjectID, Date: date}
	if sess, ok := view.FindSession(subjectID, date); ok {
		stats.Phase = sess.Phase
	}

	trials := view.TrialsOf(subjectID, date)
	byTray := map[int]*TrayStats{}
	for _, trial := range trials {
		ts, ok := byTray[trial.Tray]
		if !ok {
			ts = &TrayStats{Kind: trial.TrayKind, Tray: trial.Tray}
			byTray[trial.Tray] = ts
		}
		ts.Presented++
		switch trial.Score {
		case domain.ScoreMiss:
			ts.Miss++
		case domain.ScoreDisplaced:
			ts.Displaced++
		case domain.ScoreRetrieved:
			ts.Retrieved++
		}
	}
	trayNumbers := make([]int, 0, len(byTray))
	for n := range byTray {
		trayNumbers = append(trayNumbers, n)
	}
	sort.Ints(trayNumbers)
	for _, n := range trayNumbers {
		stats.Trays = append(stats.Trays, *byTray[n])
	}

	weights := view.WeightsOf(subjectID)
	if len(weights) > 0 {
		baseline := weights[0].Grams
		stats.BaselineWeight = &baseline
	}
	for i := len(weights) - 1; i >= 0; i-- {
		if !weights[i].Date.After(date) {
			grams := weights[i].Grams
			stats.WeightGrams = &grams
			break
		}
	}
	if stats.WeightGrams == nil {
		stats.MissingWeight = &domain.NoWeightDataError{SubjectID: subjectID, Date: date}
	}

	if contusion, ok := view.FindContusion(subjectID); ok {
		injury := contusion.Date
		stats.InjuryDate = &injury
	}
	return stats, nil
}

// SubjectStats summarizes a subject across all of its sessions.
type SubjectStats struct {
	SubjectID   string         `json:"subject_id"`
	CohortID    string         `json:"cohort_id"`
	Sex         domain.Sex     `json:"sex,omitempty"`
	DateOfBirth *time.Time     `json:"date_of_birth,omitempty"`
	InjuryDate  *time.Time     `json:"injury_date,omitempty"`
	InjuryForce *float64       `json:"injury_force_kdyn,omitempty"`
	InjuryDisp  *float64       `json:"injury_displacement_um,omitempty"`
	Sessions    []SessionStats `json:"sessions"`
}

// TotalSessions is the number of testing sessions recorded for the subject.
func (s SubjectStats) TotalSessions() int { return len(s.Sessions) }

// TotalPelletsScored sums scored slots across all sessions.
func (s SubjectStats) TotalPelletsScored() int {
	total := 0
	for _, sess := range s.Sessions {
		total += sess.Presented()
	}
	return total
}

// OverallRetrievedPct pools retrieved over presented across all sessions.
func (s SubjectStats) OverallRetrievedPct() float64 {
	presented, retrieved := 0, 0
	for _, sess := range s.Sessions {
		presented += sess.Presented()
		retrieved += sess.Retrieved()
	}
	return pct(retrieved, presented)
}

// OverallContactedPct pools contacted over presented across all sessions.
func (s SubjectStats) OverallContactedPct() float64 {
	presented, contacted := 0, 0
	for _, sess := range s.Sessions {
		presented += sess.Presented()
		contacted += sess.Contacted()
	}
	return pct(contacted, presented)
}

// PreInjurySessions returns sessions strictly before the contusion date; all
// sessions when no contusion is recorded.
func (s SubjectStats) PreInjurySessions() []SessionStats {
	if s.InjuryDate == nil {
		return s.Sessions
	}
	var out []SessionStats
	for _, sess := range s.Sessions {
		if sess.Date.Before(*s.InjuryDate) {
			out = append(out, sess)
		}
	}
	return out
}

// PostInjurySessions returns sessions on or after the contusion date; none
// when no contusion is recorded.
func (s SubjectStats) PostInjurySessions() []SessionStats {
	if s.InjuryDate == nil {
		return nil
	}
	var out []SessionStats
	for _, sess := range s.Sessions {
		if !sess.Date.Before(*s.InjuryDate) {
			out = append(out, sess)
		}
	}
	return out
}

// Subject computes the complete summary for a subject from the snapshot.
func Subject(view domain.TransactionView, subjectID string) (SubjectStats, error) {
	subject, ok := view.FindSubject(subjectID)
	if !ok {
		return SubjectStats{}, domain.ErrNotFound{Entity: domain.EntitySubject, ID: subjectID}
	}
	stats := SubjectStats{
		SubjectID:   subjectID,
		CohortID:    subject.CohortID,
		Sex:         subject.Sex,
		DateOfBirth: subject.DateOfBirth,
	}
	if contusion, ok := view.FindContusion(subjectID); ok {
		injury := contusion.Date
		stats.InjuryDate = &injury
		stats.InjuryForce = contusion.ForceKDyn
		stats.InjuryDisp = contusion.DisplacementUm
	}

	seen := map[string]bool{}
	var dates []time.Time
	for _, sess := range view.SessionsOf(subjectID) {
		key := sess.Date.Format(domain.DateLayout)
		if !seen[key] {
			seen[key] = true
			dates = append(dates, sess.Date)
		}
	}
	for _, trial := range view.ListTrials() {
		if trial.SubjectID != subjectID {
			continue
		}
		key := trial.Date.Format(domain.DateLayout)
		if !seen[key] {
			seen[key] = true
			dates = append(dates, trial.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, date := range dates {
		sess, err := Session(view, subjectID, date)
		if err != nil {
			return SubjectStats{}, err
		}
		stats.Sessions = append(stats.Sessions, sess)
	}
	return stats, nil
}
