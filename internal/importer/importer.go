// Package importer reconciles parsed legacy rows against canonical state.
// Each batch stages its outcomes against one snapshot taken at batch start,
// so a batch's own inserts never produce spurious conflicts. Dry runs return
// the same report as a live run and acquire no write lock.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"mousedb/internal/legacy"
	"mousedb/internal/sheet"
	"mousedb/pkg/domain"
	"mousedb/pkg/validate"
)

// Outcome classifies the fate of one candidate record.
type Outcome string

const (
	// OutcomeInserted means the record was absent and staged for commit.
	OutcomeInserted Outcome = "inserted"
	// OutcomeUnchanged means an identical record already exists.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeConflict means the natural key exists with divergent values;
	// the existing record is kept until the conflict is resolved explicitly.
	OutcomeConflict Outcome = "conflict"
	// OutcomeRejected means the record failed coercion or validation.
	OutcomeRejected Outcome = "rejected"
)

// RowResult is the per-record outcome, carrying enough source context
// (tab, 1-based row number) to locate the offending cell in the workbook.
type RowResult struct {
	Tab     string          `json:"tab"`
	Row     int             `json:"row"`
	Key     domain.Key      `json:"key"`
	Outcome Outcome         `json:"outcome"`
	Issues  validate.Report `json:"issues,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Conflict is a natural-key collision with divergent values. The incoming
// record is retained so the caller can resolve without re-reading the file.
type Conflict struct {
	Key      domain.Key `json:"key"`
	Tab      string     `json:"tab"`
	Row      int        `json:"row"`
	Existing any        `json:"existing"`
	Incoming any        `json:"incoming"`
}

// Report is the structured result of one import batch. Rows appear in source
// order; dry and live runs of the same file over the same state produce
// identical reports.
type Report struct {
	File        string       `json:"file"`
	DryRun      bool         `json:"dry_run"`
	Inserted    int          `json:"inserted"`
	Unchanged   int          `json:"unchanged"`
	Conflicted  int          `json:"conflicted"`
	Rejected    int          `json:"rejected"`
	Rows        []RowResult  `json:"rows"`
	Conflicts   []Conflict   `json:"conflicts,omitempty"`
	AutoCreated []domain.Key `json:"auto_created,omitempty"`
	// Error is set by ImportAll for files that could not be parsed at all;
	// such files produce no row outcomes.
	Error string `json:"error,omitempty"`
}

// Importer runs import batches against a persistent store.
type Importer struct {
	store domain.PersistentStore
}

// New returns an importer over the given store.
func New(store domain.PersistentStore) *Importer {
	return &Importer{store: store}
}

// ImportFile parses one workbook and imports it. With dryRun the staged
// outcome set is reported and the store is never written.
func (im *Importer) ImportFile(ctx context.Context, path string, dryRun bool) (Report, error) {
	file, err := im.parse(path)
	if err != nil {
		return Report{}, err
	}
	return im.ImportParsed(ctx, file, dryRun)
}

// ImportAll imports every workbook in dir, sequentially and in name order.
// Parse-stage failures (unreadable file, unrecognized layout, malformed row)
// are scoped to their file: the file is reported with its error and the scan
// moves on. Only store failures and cancellation abort the scan; cancellation
// between files leaves already-imported files committed.
func (im *Importer) ImportAll(ctx context.Context, dir string, dryRun bool) ([]Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan import directory: %w", err)
	}
	var reports []Report
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".xlsx") || strings.HasPrefix(name, "~$") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		path := filepath.Join(dir, name)
		file, parseErr := im.parse(path)
		if parseErr != nil {
			reports = append(reports, Report{File: path, DryRun: dryRun, Error: parseErr.Error()})
			continue
		}
		report, err := im.ImportParsed(ctx, file, dryRun)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (im *Importer) parse(path string) (legacy.File, error) {
	wb, err := sheet.Open(path)
	if err != nil {
		return legacy.File{}, err
	}
	return legacy.Parse(path, wb)
}

// ImportParsed imports an already parsed legacy file.
func (im *Importer) ImportParsed(ctx context.Context, file legacy.File, dryRun bool) (Report, error) {
	base, err := im.snapshot(ctx)
	if err != nil {
		return Report{}, err
	}
	b := &batch{
		base:   base,
		staged: map[string]any{},
		auto:   map[string]bool{},
		report: Report{File: file.Path, DryRun: dryRun},
	}
	if cohortID, ok := InferCohortID(file.Path); ok {
		b.ensureCohort(cohortID)
	}

	for _, tab := range file.Tabs {
		for _, row := range tab.Rows {
			if err := ctx.Err(); err != nil {
				return b.report, err
			}
			switch tab.Kind {
			case legacy.LayoutMetadata:
				b.stageMetadata(row)
			case legacy.LayoutWeight, legacy.LayoutWeightsTransposed:
				b.stageWeight(row)
			case legacy.LayoutManualTray:
				b.stageManualTray(row)
			case legacy.LayoutContusion:
				b.stageContusion(row)
			}
		}
	}

	b.fillCohortStartDates()

	if dryRun {
		return b.report, nil
	}
	if err := b.commit(ctx, im.store); err != nil {
		return b.report, err
	}
	return b.report, nil
}

// snapshot materializes the natural-key index of current canonical state.
// Conflict detection for the whole batch runs against this one snapshot.
func (im *Importer) snapshot(ctx context.Context) (map[string]any, error) {
	entities := map[string]any{}
	err := im.store.View(ctx, func(v domain.TransactionView) error {
		for _, e := range v.ListCohorts() {
			entities[e.NaturalKey().String()] = e
		}
		for _, e := range v.ListSubjects() {
			entities[e.NaturalKey().String()] = e
		}
		for _, e := range v.ListWeights() {
			entities[e.NaturalKey().String()] = e
		}
		for _, e := range v.ListSessions() {
			entities[e.NaturalKey().String()] = e
		}
		for _, e := range v.ListTrials() {
			entities[e.NaturalKey().String()] = e
		}
		for _, e := range v.ListSurgeries() {
			entities[e.NaturalKey().String()] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

type batch struct {
	base   map[string]any
	staged map[string]any
	auto   map[string]bool // keys staged as placeholders, replaceable by real rows
	report Report
}

// clearBase zeroes bookkeeping timestamps so identity comparison sees only
// the record's substance.
func clearBase(e any) any {
	switch v := e.(type) {
	case domain.Cohort:
		v.Base = domain.Base{}
		return v
	case domain.Subject:
		v.Base = domain.Base{}
		return v
	case domain.WeightRecord:
		v.Base = domain.Base{}
		return v
	case domain.PelletSession:
		v.Base = domain.Base{}
		return v
	case domain.PelletTrial:
		v.Base = domain.Base{}
		return v
	case domain.SurgeryRecord:
		v.Base = domain.Base{}
		return v
	}
	return e
}

func entityEqual(a, b any) bool {
	return reflect.DeepEqual(clearBase(a), clearBase(b))
}

func (b *batch) record(r RowResult) {
	switch r.Outcome {
	case OutcomeInserted:
		b.report.Inserted++
	case OutcomeUnchanged:
		b.report.Unchanged++
	case OutcomeConflict:
		b.report.Conflicted++
	case OutcomeRejected:
		b.report.Rejected++
	}
	b.report.Rows = append(b.report.Rows, r)
}

func (b *batch) reject(row legacy.Row, key domain.Key, issues validate.Report, reason string) {
	b.record(RowResult{Tab: row.Tab, Row: row.Number, Key: key, Outcome: OutcomeRejected, Issues: issues, Reason: reason})
}

// stage reconciles one coerced, validated candidate against the batch
// snapshot and previously staged records.
func (b *batch) stage(row legacy.Row, key domain.Key, incoming any) {
	ks := key.String()
	if prior, ok := b.staged[ks]; ok {
		if b.auto[ks] {
			// A placeholder from ensureSubject/ensureCohort: the real row
			// refines it.
			delete(b.auto, ks)
			b.staged[ks] = incoming
			b.record(RowResult{Tab: row.Tab, Row: row.Number, Key: key, Outcome: OutcomeInserted})
			return
		}
		if entityEqual(prior, incoming) {
			b.record(RowResult{Tab: row.Tab, Row: row.Number, Key: key, Outcome: OutcomeUnchanged})
			return
		}
		b.reject(row, key, nil, "duplicate natural key within batch with different values")
		return
	}
	if existing, ok := b.base[ks]; ok {
		if entityEqual(existing, incoming) {
			b.record(RowResult{Tab: row.Tab, Row: row.Number, Key: key, Outcome: OutcomeUnchanged})
			return
		}
		b.report.Conflicts = append(b.report.Conflicts, Conflict{
			Key: key, Tab: row.Tab, Row: row.Number,
			Existing: existing, Incoming: incoming,
		})
		b.record(RowResult{Tab: row.Tab, Row: row.Number, Key: key, Outcome: OutcomeConflict})
		return
	}
	b.staged[ks] = incoming
	b.record(RowResult{Tab: row.Tab, Row: row.Number, Key: key, Outcome: OutcomeInserted})
}

func (b *batch) lookup(key domain.Key) (any, bool) {
	if e, ok := b.staged[key.String()]; ok {
		return e, true
	}
	e, ok := b.base[key.String()]
	return e, ok
}

// ensureCohort auto-creates a cohort record when neither state nor the batch
// knows it yet.
func (b *batch) ensureCohort(cohortID string) {
	key := domain.CohortKey(cohortID)
	if _, ok := b.lookup(key); ok {
		return
	}
	project := cohortID[:strings.Index(cohortID, "_")]
	b.staged[key.String()] = domain.Cohort{ID: cohortID, Project: project}
	b.auto[key.String()] = true
	b.report.AutoCreated = append(b.report.AutoCreated, key)
}

// ensureSubject auto-creates a subject referenced by a weight, trial, or
// surgery row. The id must already be normalized and valid.
func (b *batch) ensureSubject(subjectID string) {
	key := domain.SubjectKey(subjectID)
	if _, ok := b.lookup(key); ok {
		return
	}
	cohortID, err := domain.DeriveCohortID(subjectID)
	if err != nil {
		return
	}
	b.ensureCohort(cohortID)
	b.staged[key.String()] = domain.Subject{ID: subjectID, CohortID: cohortID, Active: true}
	b.auto[key.String()] = true
	b.report.AutoCreated = append(b.report.AutoCreated, key)
}

func (b *batch) stageMetadata(row legacy.Row) {
	id, _ := domain.NormalizeSubjectID(row.Get(legacy.ColSubjectID))
	var issues validate.Report
	if issue := validate.SubjectID(id); issue != nil {
		issues = append(issues, *issue)
	}
	if issue := validate.Sex(row.Get(legacy.ColSex)); issue != nil {
		issues = append(issues, *issue)
	}
	dob, dobErr := parseOptionalDate(row.Get(legacy.ColDateOfBirth))
	dod, dodErr := parseOptionalDate(row.Get(legacy.ColDateOfDeath))
	if dobErr != nil || dodErr != nil {
		b.reject(row, domain.SubjectKey(id), issues, "cannot parse birth/death date")
		return
	}
	if len(issues) > 0 {
		b.reject(row, domain.SubjectKey(id), issues, "")
		return
	}
	cohortID, _ := domain.DeriveCohortID(id)
	b.ensureCohort(cohortID)
	subject := domain.Subject{
		ID:          id,
		CohortID:    cohortID,
		Sex:         domain.Sex(strings.ToUpper(row.Get(legacy.ColSex))),
		DateOfBirth: dob,
		DateOfDeath: dod,
		Active:      dod == nil,
		Notes:       row.Get(legacy.ColNotes),
	}
	b.stage(row, subject.NaturalKey(), subject)
}

func (b *batch) stageWeight(row legacy.Row) {
	id, _ := domain.NormalizeSubjectID(row.Get(legacy.ColSubjectID))
	var issues validate.Report
	if issue := validate.SubjectID(id); issue != nil {
		issues = append(issues, *issue)
	}
	date, dateErr := parseDate(row.Get(legacy.ColDate))
	if dateErr != nil {
		b.reject(row, domain.SubjectKey(id), issues, dateErr.Error())
		return
	}
	grams, gramsErr := parseFloat(row.Get(legacy.ColWeight))
	if gramsErr != nil {
		b.reject(row, domain.WeightKey(id, date), issues, gramsErr.Error())
		return
	}
	if issue := validate.Weight(grams); issue != nil {
		issues = append(issues, *issue)
	}
	if len(issues) > 0 {
		b.reject(row, domain.WeightKey(id, date), issues, "")
		return
	}
	b.ensureSubject(id)
	weight := domain.WeightRecord{
		SubjectID: id,
		Date:      date,
		Grams:     grams,
		Notes:     row.Get(legacy.ColNotes),
	}
	b.stage(row, weight.NaturalKey(), weight)
}

// stageManualTray stages the session record plus one trial per scored pellet
// column. Empty pellet cells are unscored slots, not misses.
func (b *batch) stageManualTray(row legacy.Row) {
	id, _ := domain.NormalizeSubjectID(row.Get(legacy.ColSubjectID))
	var issues validate.Report
	if issue := validate.SubjectID(id); issue != nil {
		issues = append(issues, *issue)
	}
	date, dateErr := parseDate(row.Get(legacy.ColDate))
	if dateErr != nil {
		b.reject(row, domain.SubjectKey(id), issues, dateErr.Error())
		return
	}
	kind, tray, trayErr := parseTray(row.Get(legacy.ColTrayKind))
	if trayErr != nil {
		b.reject(row, domain.SessionKey(id, date), issues, trayErr.Error())
		return
	}
	if issue := validate.TrayKind(string(kind)); issue != nil {
		issues = append(issues, *issue)
	}
	if issue := validate.TrayNumber(tray); issue != nil {
		issues = append(issues, *issue)
	}
	if len(issues) > 0 {
		b.reject(row, domain.SessionKey(id, date), issues, "")
		return
	}
	b.ensureSubject(id)
	b.stageSession(row, id, date, row.Get(legacy.ColTestPhase))

	for pellet := 1; pellet <= 20; pellet++ {
		cell := row.Get(strconv.Itoa(pellet))
		if cell == "" {
			continue
		}
		key := domain.TrialKey(id, date, tray, pellet)
		score, scoreErr := parseInt(cell)
		if scoreErr != nil {
			b.reject(row, key, nil, scoreErr.Error())
			continue
		}
		if issue := validate.Score(score); issue != nil {
			b.reject(row, key, validate.Report{*issue}, "")
			continue
		}
		trial := domain.PelletTrial{
			SubjectID: id,
			Date:      date,
			TrayKind:  kind,
			Tray:      tray,
			Pellet:    pellet,
			Score:     domain.Score(score),
		}
		b.stage(row, key, trial)
	}
}

// stageSession registers the (subject, date) session once per batch. Tray
// rows of the same session carry the same phase; a phase mismatch against
// existing state is a conflict like any other divergent value.
func (b *batch) stageSession(row legacy.Row, subjectID string, date time.Time, phase string) {
	key := domain.SessionKey(subjectID, date)
	incoming := domain.PelletSession{SubjectID: subjectID, Date: date, Phase: phase}
	if prior, ok := b.staged[key.String()]; ok && entityEqual(prior, incoming) {
		return
	}
	if existing, ok := b.base[key.String()]; ok && entityEqual(existing, incoming) {
		return
	}
	b.stage(row, key, incoming)
}

func (b *batch) stageContusion(row legacy.Row) {
	id, _ := domain.NormalizeSubjectID(row.Get(legacy.ColSubjectID))
	var issues validate.Report
	if issue := validate.SubjectID(id); issue != nil {
		issues = append(issues, *issue)
	}
	date, dateErr := parseDate(row.Get(legacy.ColDate))
	if dateErr != nil {
		b.reject(row, domain.SubjectKey(id), issues, dateErr.Error())
		return
	}
	key := domain.SurgeryKey(id, domain.SurgeryContusion, date)
	force, forceErr := parseOptionalFloat(row.Get(legacy.ColForceKDyn))
	disp, dispErr := parseOptionalFloat(row.Get(legacy.ColDisplacementUm))
	velocity, velErr := parseOptionalFloat(row.Get(legacy.ColVelocityMmS))
	dwell, dwellErr := parseOptionalFloat(row.Get(legacy.ColDwellTimeS))
	for _, err := range []error{forceErr, dispErr, velErr, dwellErr} {
		if err != nil {
			b.reject(row, key, issues, err.Error())
			return
		}
	}
	if len(issues) > 0 {
		b.reject(row, key, issues, "")
		return
	}
	b.ensureSubject(id)
	surgery := domain.SurgeryRecord{
		SubjectID:      id,
		Kind:           domain.SurgeryContusion,
		Date:           date,
		ForceKDyn:      force,
		DisplacementUm: disp,
		VelocityMmS:    velocity,
		DwellTimeS:     dwell,
		Surgeon:        row.Get(legacy.ColSurgeon),
		Notes:          row.Get(legacy.ColNotes),
	}
	b.stage(row, key, surgery)

	// A contusion row with Survived=N records the death: the subject is
	// marked inactive as part of the same batch.
	if strings.EqualFold(row.Get(legacy.ColSurvived), "N") {
		b.markDead(id, date)
	}
}

func (b *batch) markDead(subjectID string, date time.Time) {
	key := domain.SubjectKey(subjectID)
	current, ok := b.lookup(key)
	if !ok {
		return
	}
	subject, ok := current.(domain.Subject)
	if !ok {
		return
	}
	if !subject.Active && subject.DateOfDeath != nil {
		return
	}
	subject.Active = false
	if subject.DateOfDeath == nil {
		subject.DateOfDeath = &date
	}
	b.staged[key.String()] = subject
}

// fillCohortStartDates backfills the start date of auto-created cohorts with
// the earliest weight or session date staged for their subjects.
func (b *batch) fillCohortStartDates() {
	earliest := map[string]time.Time{}
	note := func(subjectID string, date time.Time) {
		cohortID, err := domain.DeriveCohortID(subjectID)
		if err != nil {
			return
		}
		if cur, ok := earliest[cohortID]; !ok || date.Before(cur) {
			earliest[cohortID] = date
		}
	}
	for _, e := range b.staged {
		switch v := e.(type) {
		case domain.WeightRecord:
			note(v.SubjectID, v.Date)
		case domain.PelletSession:
			note(v.SubjectID, v.Date)
		}
	}
	for cohortID, date := range earliest {
		key := domain.CohortKey(cohortID).String()
		if !b.auto[key] {
			continue
		}
		cohort, ok := b.staged[key].(domain.Cohort)
		if !ok {
			continue
		}
		cohort.StartDate = date
		b.staged[key] = cohort
	}
}

// entityRank orders staged records so referenced entities commit before the
// records that point at them.
func entityRank(e any) int {
	switch e.(type) {
	case domain.Cohort:
		return 0
	case domain.Subject:
		return 1
	case domain.WeightRecord:
		return 2
	case domain.PelletSession:
		return 3
	case domain.PelletTrial:
		return 4
	case domain.SurgeryRecord:
		return 5
	}
	return 6
}

// commit writes every staged record in one store transaction. Rejected and
// conflicting records never reach the store.
func (b *batch) commit(ctx context.Context, store domain.PersistentStore) error {
	if len(b.staged) == 0 {
		return nil
	}
	keys := make([]string, 0, len(b.staged))
	for k := range b.staged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := entityRank(b.staged[keys[i]]), entityRank(b.staged[keys[j]])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			switch e := b.staged[k].(type) {
			case domain.Cohort:
				_, err = tx.PutCohort(e)
			case domain.Subject:
				_, err = tx.PutSubject(e)
			case domain.WeightRecord:
				_, err = tx.PutWeight(e)
			case domain.PelletSession:
				_, err = tx.PutSession(e)
			case domain.PelletTrial:
				_, err = tx.PutTrial(e)
			case domain.SurgeryRecord:
				_, err = tx.PutSurgery(e)
			default:
				err = fmt.Errorf("unknown staged entity %T", e)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// Resolution names the explicit choices for settling a conflict.
type Resolution string

const (
	// KeepExisting discards the incoming record.
	KeepExisting Resolution = "keep_existing"
	// AcceptIncoming overwrites the stored record with the incoming one.
	AcceptIncoming Resolution = "accept_incoming"
)

// Resolve applies an explicit conflict resolution. KeepExisting is a no-op
// on the store; AcceptIncoming overwrites under the natural key.
func Resolve(ctx context.Context, store domain.PersistentStore, c Conflict, r Resolution) error {
	switch r {
	case KeepExisting:
		return nil
	case AcceptIncoming:
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			switch e := c.Incoming.(type) {
			case domain.Cohort:
				_, err = tx.PutCohort(e)
			case domain.Subject:
				_, err = tx.PutSubject(e)
			case domain.WeightRecord:
				_, err = tx.PutWeight(e)
			case domain.PelletSession:
				_, err = tx.PutSession(e)
			case domain.PelletTrial:
				_, err = tx.PutTrial(e)
			case domain.SurgeryRecord:
				_, err = tx.PutSurgery(e)
			default:
				err = fmt.Errorf("unknown conflict entity %T", e)
			}
			return err
		})
		return err
	default:
		return fmt.Errorf("unknown resolution %q", r)
	}
}
