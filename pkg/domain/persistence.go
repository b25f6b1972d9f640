package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Put operations are upserts on the
// entity's natural key: corrections overwrite the same key, never fork
// history. Deletes exist for direct-entry collaborators; the import/export
// engine itself never deletes.
type Transaction interface {
	Snapshot() TransactionView
	PutCohort(Cohort) (Cohort, error)
	PutSubject(Subject) (Subject, error)
	PutWeight(WeightRecord) (WeightRecord, error)
	PutSession(PelletSession) (PelletSession, error)
	PutTrial(PelletTrial) (PelletTrial, error)
	PutSurgery(SurgeryRecord) (SurgeryRecord, error)
	DeleteSurgery(key Key) error
}

// TransactionView provides read-only access to a consistent snapshot of
// canonical state. List results are ordered by natural key.
type TransactionView interface {
	ListCohorts() []Cohort
	ListSubjects() []Subject
	ListWeights() []WeightRecord
	ListSessions() []PelletSession
	ListTrials() []PelletTrial
	ListSurgeries() []SurgeryRecord

	FindCohort(id string) (Cohort, bool)
	FindSubject(id string) (Subject, bool)
	FindWeight(subjectID string, date time.Time) (WeightRecord, bool)
	FindSession(subjectID string, date time.Time) (PelletSession, bool)
	FindTrial(subjectID string, date time.Time, tray, pellet int) (PelletTrial, bool)
	FindContusion(subjectID string) (SurgeryRecord, bool)

	SubjectsOf(cohortID string) []Subject
	WeightsOf(subjectID string) []WeightRecord
	SessionsOf(subjectID string) []PelletSession
	TrialsOf(subjectID string, date time.Time) []PelletTrial
	SurgeriesOf(subjectID string) []SurgeryRecord
}

// RuleView is the read surface exposed to rules; it matches TransactionView.
type RuleView = TransactionView

// PersistentStore is a minimal abstraction over durable backends. Writes are
// serialized (single writer); reads take shared snapshots. A write that
// cannot be admitted before the caller's context expires fails with
// ErrStoreBusy rather than corrupting state.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	GetCohort(id string) (Cohort, bool)
	GetSubject(id string) (Subject, bool)
	ListCohorts() []Cohort
	ListSubjects() []Subject
}
