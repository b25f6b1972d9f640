// Package domain defines the canonical entities, natural keys, persistence
// ports, and rule evaluation primitives used by the mousedb engine.
package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the canonical schema.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCohort identifies a cohort record.
	EntityCohort EntityType = "cohort"
	// EntitySubject identifies a subject (animal) record.
	EntitySubject EntityType = "subject"
	// EntityWeight identifies a weight measurement record.
	EntityWeight EntityType = "weight"
	// EntitySession identifies a behavioral testing session record.
	EntitySession EntityType = "session"
	// EntityTrial identifies a single pellet trial within a session.
	EntityTrial EntityType = "trial"
	// EntitySurgery identifies a surgery record.
	EntitySurgery EntityType = "surgery"
)

// Sex is the recorded sex of a subject.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

// Score is the outcome recorded for a single pellet.
type Score int

// Pellet outcomes: 0 = miss, 1 = displaced, 2 = retrieved.
const (
	ScoreMiss      Score = 0
	ScoreDisplaced Score = 1
	ScoreRetrieved Score = 2
)

// Contacted reports whether the pellet was touched (displaced or retrieved).
func (s Score) Contacted() bool { return s == ScoreDisplaced || s == ScoreRetrieved }

// TrayKind is the physical tray difficulty class.
type TrayKind string

const (
	TrayEasy   TrayKind = "E"
	TrayFlat   TrayKind = "F"
	TrayPillar TrayKind = "P"
)

// SurgeryKind enumerates the recorded surgery types.
type SurgeryKind string

const (
	SurgeryContusion SurgeryKind = "contusion"
	SurgeryTracing   SurgeryKind = "tracing"
	SurgeryPerfusion SurgeryKind = "perfusion"
)

// DateLayout is the canonical wire format for dates in legacy sheets.
const DateLayout = "2006-01-02"

// Base contains bookkeeping fields shared by persisted records.
type Base struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cohort represents a batch of subjects enrolled together under one project.
type Cohort struct {
	Base
	ID              string    `json:"id"` // e.g. CNT_05
	Project         string    `json:"project"`
	StartDate       time.Time `json:"start_date"`
	PlannedSubjects int       `json:"planned_subjects"`
	Notes           string    `json:"notes,omitempty"`
}

// Subject represents an individual animal tracked by the system.
type Subject struct {
	Base
	ID          string     `json:"id"` // PROJECT_COHORT_SUBJECT, e.g. CNT_05_03
	CohortID    string     `json:"cohort_id"`
	Sex         Sex        `json:"sex,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	DateOfDeath *time.Time `json:"date_of_death,omitempty"`
	Active      bool       `json:"active"`
	Notes       string     `json:"notes,omitempty"`
}

// WeightRecord is one weight measurement for a subject on a date.
type WeightRecord struct {
	Base
	SubjectID string    `json:"subject_id"`
	Date      time.Time `json:"date"`
	Grams     float64   `json:"grams"`
	Notes     string    `json:"notes,omitempty"`
}

// PelletSession is one day's behavioral testing event for a subject.
type PelletSession struct {
	Base
	SubjectID string    `json:"subject_id"`
	Date      time.Time `json:"date"`
	Phase     string    `json:"phase"` // test phase label, e.g. Post-Injury_Test_2
}

// PelletTrial is one scored pellet slot within a session.
// At most one trial exists per (session, tray, pellet); a session spans up to
// 4 trays of 20 pellets each (80 slots).
type PelletTrial struct {
	Base
	SubjectID string    `json:"subject_id"`
	Date      time.Time `json:"date"`
	TrayKind  TrayKind  `json:"tray_kind"`
	Tray      int       `json:"tray"`   // 1-4
	Pellet    int       `json:"pellet"` // 1-20
	Score     Score     `json:"score"`
}

// SurgeryRecord captures a surgical event for a subject. Contusion and
// perfusion records are singletons per subject; tracing records may repeat.
type SurgeryRecord struct {
	Base
	SubjectID string      `json:"subject_id"`
	Kind      SurgeryKind `json:"kind"`
	Date      time.Time   `json:"date"`

	// Contusion parameters.
	ForceKDyn      *float64 `json:"force_kdyn,omitempty"`
	DisplacementUm *float64 `json:"displacement_um,omitempty"`
	VelocityMmS    *float64 `json:"velocity_mm_s,omitempty"`
	DwellTimeS     *float64 `json:"dwell_time_s,omitempty"`

	// Tracing parameters.
	Virus    string   `json:"virus,omitempty"`
	VolumeNL *float64 `json:"volume_nl,omitempty"`

	Surgeon string `json:"surgeon,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

var (
	subjectIDPattern = regexp.MustCompile(`^[A-Z]+_\d{2}_\d{2}$`)
	cohortIDPattern  = regexp.MustCompile(`^[A-Z]+_\d{2}$`)
	compactIDPattern = regexp.MustCompile(`^([A-Za-z]+)(\d{2})(\d{2})$`)
)

// ValidSubjectID reports whether id matches the PROJECT_NN_NN convention.
func ValidSubjectID(id string) bool { return subjectIDPattern.MatchString(id) }

// ValidCohortID reports whether id matches the PROJECT_NN convention.
func ValidCohortID(id string) bool { return cohortIDPattern.MatchString(id) }

// ParseSubjectID splits a subject id into project code, cohort number, and
// subject number.
func ParseSubjectID(id string) (project string, cohort, subject int, err error) {
	if !ValidSubjectID(id) {
		return "", 0, 0, fmt.Errorf("invalid subject id %q", id)
	}
	parts := strings.Split(id, "_")
	cohort, _ = strconv.Atoi(parts[1])
	subject, _ = strconv.Atoi(parts[2])
	return parts[0], cohort, subject, nil
}

// DeriveCohortID returns the cohort id embedded in a subject id
// (CNT_05_03 -> CNT_05).
func DeriveCohortID(subjectID string) (string, error) {
	project, cohort, _, err := ParseSubjectID(subjectID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%02d", project, cohort), nil
}

// NormalizeSubjectID upper-cases and trims an id and expands the compact
// form used by video tooling (CNT0503 -> CNT_05_03). The boolean reports
// whether the result is a valid subject id.
func NormalizeSubjectID(raw string) (string, bool) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if ValidSubjectID(id) {
		return id, true
	}
	if m := compactIDPattern.FindStringSubmatch(strings.TrimSpace(raw)); m != nil {
		id = fmt.Sprintf("%s_%s_%s", strings.ToUpper(m[1]), m[2], m[3])
		return id, true
	}
	return id, false
}

// Key is the canonical natural key of an entity, used for lookups, conflict
// bookkeeping, and change records. ID is a stable string encoding unique
// within the entity type.
type Key struct {
	Entity EntityType `json:"entity"`
	ID     string     `json:"id"`
}

func (k Key) String() string { return string(k.Entity) + "/" + k.ID }

func dateKey(t time.Time) string { return t.Format(DateLayout) }

// CohortKey returns the natural key of a cohort.
func CohortKey(id string) Key { return Key{Entity: EntityCohort, ID: id} }

// SubjectKey returns the natural key of a subject.
func SubjectKey(id string) Key { return Key{Entity: EntitySubject, ID: id} }

// WeightKey returns the natural key of a weight record: one per (subject, date).
func WeightKey(subjectID string, date time.Time) Key {
	return Key{Entity: EntityWeight, ID: subjectID + "|" + dateKey(date)}
}

// SessionKey returns the natural key of a session: one per (subject, date).
func SessionKey(subjectID string, date time.Time) Key {
	return Key{Entity: EntitySession, ID: subjectID + "|" + dateKey(date)}
}

// TrialKey returns the natural key of a pellet trial.
func TrialKey(subjectID string, date time.Time, tray, pellet int) Key {
	return Key{Entity: EntityTrial, ID: fmt.Sprintf("%s|%s|%d|%d", subjectID, dateKey(date), tray, pellet)}
}

// SurgeryKey returns the natural key of a surgery record. Contusion and
// perfusion are singletons per subject; tracing keys include the date.
func SurgeryKey(subjectID string, kind SurgeryKind, date time.Time) Key {
	if kind == SurgeryTracing {
		return Key{Entity: EntitySurgery, ID: subjectID + "|" + string(kind) + "|" + dateKey(date)}
	}
	return Key{Entity: EntitySurgery, ID: subjectID + "|" + string(kind)}
}

// NaturalKey returns the natural key of each canonical entity.
func (c Cohort) NaturalKey() Key        { return CohortKey(c.ID) }
func (s Subject) NaturalKey() Key       { return SubjectKey(s.ID) }
func (w WeightRecord) NaturalKey() Key  { return WeightKey(w.SubjectID, w.Date) }
func (p PelletSession) NaturalKey() Key { return SessionKey(p.SubjectID, p.Date) }
func (p PelletTrial) NaturalKey() Key {
	return TrialKey(p.SubjectID, p.Date, p.Tray, p.Pellet)
}
func (s SurgeryRecord) NaturalKey() Key { return SurgeryKey(s.SubjectID, s.Kind, s.Date) }

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Key    Key
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was overwritten under its natural key.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
