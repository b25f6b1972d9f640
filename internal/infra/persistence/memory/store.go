// Package memory provides the clone-on-write transactional store the durable
// backends build upon. State lives in natural-key maps; a transaction works on
// a deep copy and replaces committed state only after the rules engine passes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mousedb/pkg/domain"
)

// Aliases keep method signatures concise while exposing domain types from
// this infra package.
type (
	// Cohort is an alias of domain.Cohort.
	Cohort = domain.Cohort
	// Subject is an alias of domain.Subject.
	Subject = domain.Subject
	// WeightRecord is an alias of domain.WeightRecord.
	WeightRecord = domain.WeightRecord
	// PelletSession is an alias of domain.PelletSession.
	PelletSession = domain.PelletSession
	// PelletTrial is an alias of domain.PelletTrial.
	PelletTrial = domain.PelletTrial
	// SurgeryRecord is an alias of domain.SurgeryRecord.
	SurgeryRecord = domain.SurgeryRecord
	// Change is an alias of domain.Change.
	Change = domain.Change
	// Result is an alias of domain.Result.
	Result = domain.Result
	// RulesEngine is an alias of domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction is an alias of domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView is an alias of domain.TransactionView.
	TransactionView = domain.TransactionView
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	cohorts   map[string]Cohort
	subjects  map[string]Subject
	weights   map[string]WeightRecord
	sessions  map[string]PelletSession
	trials    map[string]PelletTrial
	surgeries map[string]SurgeryRecord
}

// Snapshot is the serialisable representation of the in-memory state, keyed
// by natural key. Durable backends persist and reload it verbatim.
type Snapshot struct {
	Cohorts   map[string]Cohort        `json:"cohorts"`
	Subjects  map[string]Subject       `json:"subjects"`
	Weights   map[string]WeightRecord  `json:"weights"`
	Sessions  map[string]PelletSession `json:"sessions"`
	Trials    map[string]PelletTrial   `json:"trials"`
	Surgeries map[string]SurgeryRecord `json:"surgeries"`
}

func newMemoryState() memoryState {
	return memoryState{
		cohorts:   map[string]Cohort{},
		subjects:  map[string]Subject{},
		weights:   map[string]WeightRecord{},
		sessions:  map[string]PelletSession{},
		trials:    map[string]PelletTrial{},
		surgeries: map[string]SurgeryRecord{},
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.cohorts {
		cloned.cohorts[k] = v
	}
	for k, v := range s.subjects {
		cloned.subjects[k] = cloneSubject(v)
	}
	for k, v := range s.weights {
		cloned.weights[k] = v
	}
	for k, v := range s.sessions {
		cloned.sessions[k] = v
	}
	for k, v := range s.trials {
		cloned.trials[k] = v
	}
	for k, v := range s.surgeries {
		cloned.surgeries[k] = cloneSurgery(v)
	}
	return cloned
}

func cloneSubject(s Subject) Subject {
	cp := s
	if s.DateOfBirth != nil {
		dob := *s.DateOfBirth
		cp.DateOfBirth = &dob
	}
	if s.DateOfDeath != nil {
		dod := *s.DateOfDeath
		cp.DateOfDeath = &dod
	}
	return cp
}

func cloneSurgery(s SurgeryRecord) SurgeryRecord {
	cp := s
	cp.ForceKDyn = cloneFloat(s.ForceKDyn)
	cp.DisplacementUm = cloneFloat(s.DisplacementUm)
	cp.VelocityMmS = cloneFloat(s.VelocityMmS)
	cp.DwellTimeS = cloneFloat(s.DwellTimeS)
	cp.VolumeNL = cloneFloat(s.VolumeNL)
	return cp
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Store is the in-memory transactional store. Writes are serialized through a
// token channel so a writer that cannot be admitted before its context
// expires fails with domain.ErrStoreBusy instead of queueing indefinitely.
type Store struct {
	mu         sync.RWMutex
	writeToken chan struct{}
	state      memoryState
	engine     *RulesEngine
	nowFn      func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	token := make(chan struct{}, 1)
	token <- struct{}{}
	return &Store{
		writeToken: token,
		state:      newMemoryState(),
		engine:     engine,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used for bookkeeping timestamps (tests).
func (s *Store) SetNowFunc(fn func() time.Time) { s.nowFn = fn }

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

var _ Transaction = (*transaction)(nil)

type view struct {
	state *memoryState
}

var _ TransactionView = view{}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy replaces committed state only when fn succeeds and no
// registered rule reports a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	select {
	case <-s.writeToken:
	case <-ctx.Done():
		return Result{}, domain.ErrStoreBusy
	}
	defer func() { s.writeToken <- struct{}{} }()

	s.mu.RLock()
	base := s.state.clone()
	s.mu.RUnlock()

	tx := &transaction{state: base, now: s.nowFn()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.mu.Lock()
	s.state = tx.state
	s.mu.Unlock()
	return result, nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(view{state: &snapshot})
}

// ExportState returns a serialisable snapshot of committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state.clone()
	return Snapshot{
		Cohorts:   st.cohorts,
		Subjects:  st.subjects,
		Weights:   st.weights,
		Sessions:  st.sessions,
		Trials:    st.trials,
		Surgeries: st.surgeries,
	}
}

// ImportState replaces committed state with the snapshot contents. Nil maps
// are treated as empty.
func (s *Store) ImportState(snapshot Snapshot) {
	st := newMemoryState()
	for k, v := range snapshot.Cohorts {
		st.cohorts[k] = v
	}
	for k, v := range snapshot.Subjects {
		st.subjects[k] = v
	}
	for k, v := range snapshot.Weights {
		st.weights[k] = v
	}
	for k, v := range snapshot.Sessions {
		st.sessions[k] = v
	}
	for k, v := range snapshot.Trials {
		st.trials[k] = v
	}
	for k, v := range snapshot.Surgeries {
		st.surgeries[k] = v
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Transaction mutators -------------------------------------------------------

func (tx *transaction) Snapshot() TransactionView { return view{state: &tx.state} }

func (tx *transaction) recordChange(c Change) { tx.changes = append(tx.changes, c) }

func stamp(base *domain.Base, created bool, now time.Time) {
	if created {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
}

func (tx *transaction) PutCohort(c Cohort) (Cohort, error) {
	key := c.NaturalKey()
	prev, exists := tx.state.cohorts[key.ID]
	if exists {
		c.CreatedAt = prev.CreatedAt
	}
	stamp(&c.Base, !exists, tx.now)
	tx.state.cohorts[key.ID] = c
	tx.recordChange(changeFor(key, exists, prev, c))
	return c, nil
}

func (tx *transaction) PutSubject(s Subject) (Subject, error) {
	key := s.NaturalKey()
	prev, exists := tx.state.subjects[key.ID]
	if exists {
		s.CreatedAt = prev.CreatedAt
	}
	stamp(&s.Base, !exists, tx.now)
	tx.state.subjects[key.ID] = cloneSubject(s)
	tx.recordChange(changeFor(key, exists, cloneSubject(prev), cloneSubject(s)))
	return s, nil
}

func (tx *transaction) PutWeight(w WeightRecord) (WeightRecord, error) {
	key := w.NaturalKey()
	prev, exists := tx.state.weights[key.ID]
	if exists {
		w.CreatedAt = prev.CreatedAt
	}
	stamp(&w.Base, !exists, tx.now)
	tx.state.weights[key.ID] = w
	tx.recordChange(changeFor(key, exists, prev, w))
	return w, nil
}

func (tx *transaction) PutSession(p PelletSession) (PelletSession, error) {
	key := p.NaturalKey()
	prev, exists := tx.state.sessions[key.ID]
	if exists {
		p.CreatedAt = prev.CreatedAt
	}
	stamp(&p.Base, !exists, tx.now)
	tx.state.sessions[key.ID] = p
	tx.recordChange(changeFor(key, exists, prev, p))
	return p, nil
}

func (tx *transaction) PutTrial(t PelletTrial) (PelletTrial, error) {
	key := t.NaturalKey()
	prev, exists := tx.state.trials[key.ID]
	if exists {
		t.CreatedAt = prev.CreatedAt
	}
	stamp(&t.Base, !exists, tx.now)
	tx.state.trials[key.ID] = t
	tx.recordChange(changeFor(key, exists, prev, t))
	return t, nil
}

func (tx *transaction) PutSurgery(r SurgeryRecord) (SurgeryRecord, error) {
	key := r.NaturalKey()
	prev, exists := tx.state.surgeries[key.ID]
	if exists {
		r.CreatedAt = prev.CreatedAt
	}
	stamp(&r.Base, !exists, tx.now)
	tx.state.surgeries[key.ID] = cloneSurgery(r)
	tx.recordChange(changeFor(key, exists, cloneSurgery(prev), cloneSurgery(r)))
	return r, nil
}

func (tx *transaction) DeleteSurgery(key domain.Key) error {
	prev, exists := tx.state.surgeries[key.ID]
	if !exists {
		return domain.ErrNotFound{Entity: domain.EntitySurgery, ID: key.ID}
	}
	delete(tx.state.surgeries, key.ID)
	tx.recordChange(Change{Entity: key.Entity, Action: domain.ActionDelete, Key: key, Before: cloneSurgery(prev)})
	return nil
}

func changeFor(key domain.Key, existed bool, before, after any) Change {
	action := domain.ActionCreate
	var prev any
	if existed {
		action = domain.ActionUpdate
		prev = before
	}
	return Change{Entity: key.Entity, Action: action, Key: key, Before: prev, After: after}
}

// View finders ---------------------------------------------------------------

func (v view) ListCohorts() []Cohort {
	out := make([]Cohort, 0, len(v.state.cohorts))
	for _, c := range v.state.cohorts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) ListSubjects() []Subject {
	out := make([]Subject, 0, len(v.state.subjects))
	for _, s := range v.state.subjects {
		out = append(out, cloneSubject(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) ListWeights() []WeightRecord {
	out := make([]WeightRecord, 0, len(v.state.weights))
	for _, w := range v.state.weights {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return v.less(out[i].NaturalKey(), out[j].NaturalKey()) })
	return out
}

func (v view) ListSessions() []PelletSession {
	out := make([]PelletSession, 0, len(v.state.sessions))
	for _, s := range v.state.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return v.less(out[i].NaturalKey(), out[j].NaturalKey()) })
	return out
}

func (v view) ListTrials() []PelletTrial {
	out := make([]PelletTrial, 0, len(v.state.trials))
	for _, t := range v.state.trials {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Tray != b.Tray {
			return a.Tray < b.Tray
		}
		return a.Pellet < b.Pellet
	})
	return out
}

func (v view) ListSurgeries() []SurgeryRecord {
	out := make([]SurgeryRecord, 0, len(v.state.surgeries))
	for _, s := range v.state.surgeries {
		out = append(out, cloneSurgery(s))
	}
	sort.Slice(out, func(i, j int) bool { return v.less(out[i].NaturalKey(), out[j].NaturalKey()) })
	return out
}

func (view) less(a, b domain.Key) bool { return a.ID < b.ID }

func (v view) FindCohort(id string) (Cohort, bool) {
	c, ok := v.state.cohorts[id]
	return c, ok
}

func (v view) FindSubject(id string) (Subject, bool) {
	s, ok := v.state.subjects[id]
	if !ok {
		return Subject{}, false
	}
	return cloneSubject(s), true
}

func (v view) FindWeight(subjectID string, date time.Time) (WeightRecord, bool) {
	w, ok := v.state.weights[domain.WeightKey(subjectID, date).ID]
	return w, ok
}

func (v view) FindSession(subjectID string, date time.Time) (PelletSession, bool) {
	s, ok := v.state.sessions[domain.SessionKey(subjectID, date).ID]
	return s, ok
}

func (v view) FindTrial(subjectID string, date time.Time, tray, pellet int) (PelletTrial, bool) {
	t, ok := v.state.trials[domain.TrialKey(subjectID, date, tray, pellet).ID]
	return t, ok
}

func (v view) FindContusion(subjectID string) (SurgeryRecord, bool) {
	s, ok := v.state.surgeries[domain.SurgeryKey(subjectID, domain.SurgeryContusion, time.Time{}).ID]
	if !ok {
		return SurgeryRecord{}, false
	}
	return cloneSurgery(s), true
}

func (v view) SubjectsOf(cohortID string) []Subject {
	var out []Subject
	for _, s := range v.state.subjects {
		if s.CohortID == cohortID {
			out = append(out, cloneSubject(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) WeightsOf(subjectID string) []WeightRecord {
	var out []WeightRecord
	for _, w := range v.state.weights {
		if w.SubjectID == subjectID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (v view) SessionsOf(subjectID string) []PelletSession {
	var out []PelletSession
	for _, s := range v.state.sessions {
		if s.SubjectID == subjectID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (v view) TrialsOf(subjectID string, date time.Time) []PelletTrial {
	var out []PelletTrial
	for _, t := range v.state.trials {
		if t.SubjectID == subjectID && t.Date.Equal(date) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tray != out[j].Tray {
			return out[i].Tray < out[j].Tray
		}
		return out[i].Pellet < out[j].Pellet
	})
	return out
}

func (v view) SurgeriesOf(subjectID string) []SurgeryRecord {
	var out []SurgeryRecord
	for _, s := range v.state.surgeries {
		if s.SubjectID == subjectID {
			out = append(out, cloneSurgery(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Read helpers ---------------------------------------------------------------

// GetCohort retrieves a cohort by ID from committed state.
func (s *Store) GetCohort(id string) (Cohort, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cohorts[id]
	return c, ok
}

// GetSubject retrieves a subject by ID from committed state.
func (s *Store) GetSubject(id string) (Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.state.subjects[id]
	if !ok {
		return Subject{}, false
	}
	return cloneSubject(sub), true
}

// ListCohorts returns all cohorts from committed state ordered by ID.
func (s *Store) ListCohorts() []Cohort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListCohorts()
}

// ListSubjects returns all subjects from committed state ordered by ID.
func (s *Store) ListSubjects() []Subject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListSubjects()
}
