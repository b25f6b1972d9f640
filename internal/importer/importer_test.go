package importer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mousedb/internal/infra/persistence/memory"
	"mousedb/internal/legacy"
	"mousedb/internal/sheet"
	"mousedb/pkg/domain"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func trackingWorkbook() sheet.Workbook {
	return sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "0a_Metadata", Rows: [][]string{
			{"Subject_ID", "Sex", "Date_of_Birth", "Notes"},
			{"CNT_05_03", "F", "2024-11-02", ""},
		}},
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT_05_03", "24.1"},
		}},
		{Name: "3b_Manual_Tray", Rows: [][]string{
			{"Date", "Animal", "Test_Phase", "Tray Type/Number", "1", "2", "3", "4"},
			{"2025-03-08", "CNT_05_03", "Post-Injury_Test_1", "P1", "2", "0", "1", ""},
		}},
		{Name: "4_Contusion_Injury_Details", Rows: [][]string{
			{"Surgery_Date", "Animal", "Actual_kd", "Actual_displacement", "Survived"},
			{"2025-03-01", "CNT_05_03", "65.2", "512", "Y"},
		}},
	}}
}

func parseFixture(t *testing.T, path string, wb sheet.Workbook) legacy.File {
	t.Helper()
	file, err := legacy.Parse(path, wb)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return file
}

func TestImportThenReimportIsIdempotent(t *testing.T) {
	store := memory.NewStore(nil)
	im := New(store)
	file := parseFixture(t, "CNT_05_tracking.xlsx", trackingWorkbook())

	first, err := im.ImportParsed(context.Background(), file, false)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if first.Rejected != 0 || first.Conflicted != 0 {
		t.Fatalf("clean file must import cleanly: %+v", first)
	}
	if first.Inserted == 0 {
		t.Fatalf("expected inserts, got %+v", first)
	}

	second, err := im.ImportParsed(context.Background(), file, false)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.Inserted != 0 || second.Conflicted != 0 || second.Rejected != 0 {
		t.Fatalf("re-import must be a no-op: %+v", second)
	}
	if second.Unchanged == 0 {
		t.Fatalf("re-import must report unchanged rows: %+v", second)
	}
}

func TestImportStagesEntitiesFromAllTabs(t *testing.T) {
	store := memory.NewStore(nil)
	im := New(store)
	file := parseFixture(t, "CNT_05_tracking.xlsx", trackingWorkbook())
	if _, err := im.ImportParsed(context.Background(), file, false); err != nil {
		t.Fatalf("import: %v", err)
	}
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		if _, ok := v.FindCohort("CNT_05"); !ok {
			t.Error("cohort not created")
		}
		subject, ok := v.FindSubject("CNT_05_03")
		if !ok {
			t.Fatal("subject not created")
		}
		if subject.Sex != domain.SexFemale || subject.DateOfBirth == nil {
			t.Errorf("subject metadata: %+v", subject)
		}
		if _, ok := v.FindWeight("CNT_05_03", day("2025-03-08")); !ok {
			t.Error("weight not created")
		}
		sess, ok := v.FindSession("CNT_05_03", day("2025-03-08"))
		if !ok {
			t.Fatal("session not created")
		}
		if sess.Phase != "Post-Injury_Test_1" {
			t.Errorf("phase: %q", sess.Phase)
		}
		trials := v.TrialsOf("CNT_05_03", day("2025-03-08"))
		if len(trials) != 3 {
			t.Fatalf("empty pellet cells must be skipped, got %d trials", len(trials))
		}
		if trials[0].Score != domain.ScoreRetrieved || trials[0].TrayKind != domain.TrayPillar {
			t.Errorf("trial: %+v", trials[0])
		}
		contusion, ok := v.FindContusion("CNT_05_03")
		if !ok {
			t.Fatal("contusion not created")
		}
		if contusion.ForceKDyn == nil || *contusion.ForceKDyn != 65.2 {
			t.Errorf("force: %v", contusion.ForceKDyn)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestDryRunReportsWithoutSideEffects(t *testing.T) {
	store := memory.NewStore(nil)
	im := New(store)
	file := parseFixture(t, "CNT_05_tracking.xlsx", trackingWorkbook())

	dry, err := im.ImportParsed(context.Background(), file, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !dry.DryRun {
		t.Fatal("report must be flagged as dry run")
	}
	if len(store.ListSubjects()) != 0 || len(store.ListCohorts()) != 0 {
		t.Fatal("dry run must not touch the store")
	}

	live, err := im.ImportParsed(context.Background(), file, false)
	if err != nil {
		t.Fatalf("live run: %v", err)
	}
	if dry.Inserted != live.Inserted || dry.Unchanged != live.Unchanged ||
		dry.Conflicted != live.Conflicted || dry.Rejected != live.Rejected {
		t.Fatalf("dry and live reports diverged: %+v vs %+v", dry, live)
	}
	if len(dry.Rows) != len(live.Rows) {
		t.Fatalf("row outcomes diverged: %d vs %d", len(dry.Rows), len(live.Rows))
	}
	for i := range dry.Rows {
		if dry.Rows[i].Outcome != live.Rows[i].Outcome || dry.Rows[i].Key != live.Rows[i].Key {
			t.Fatalf("row %d diverged: %+v vs %+v", i, dry.Rows[i], live.Rows[i])
		}
	}
}

func TestConflictLeavesExistingValueAndResolves(t *testing.T) {
	store := memory.NewStore(nil)
	seedWeight := domain.WeightRecord{SubjectID: "CNT_05_03", Date: day("2025-03-08"), Grams: 24.1}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutCohort(domain.Cohort{ID: "CNT_05", Project: "CNT"}); err != nil {
			return err
		}
		if _, err := tx.PutSubject(domain.Subject{ID: "CNT_05_03", CohortID: "CNT_05", Active: true}); err != nil {
			return err
		}
		_, err := tx.PutWeight(seedWeight)
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT_05_03", "25.0"},
		}},
	}}
	im := New(store)
	report, err := im.ImportParsed(context.Background(), parseFixture(t, "CNT_05_w.xlsx", wb), false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Conflicted != 1 || len(report.Conflicts) != 1 {
		t.Fatalf("expected one conflict: %+v", report)
	}

	err = store.View(context.Background(), func(v domain.TransactionView) error {
		w, _ := v.FindWeight("CNT_05_03", day("2025-03-08"))
		if w.Grams != 24.1 {
			t.Fatalf("conflict must keep the existing value, got %v", w.Grams)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	conflict := report.Conflicts[0]
	if conflict.Key != domain.WeightKey("CNT_05_03", day("2025-03-08")) {
		t.Fatalf("conflict key: %v", conflict.Key)
	}
	if err := Resolve(context.Background(), store, conflict, AcceptIncoming); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		w, _ := v.FindWeight("CNT_05_03", day("2025-03-08"))
		if w.Grams != 25.0 {
			t.Fatalf("accept_incoming must overwrite, got %v", w.Grams)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestInvalidScoreIsRejectedRowNotFatal(t *testing.T) {
	store := memory.NewStore(nil)
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "3b_Manual_Tray", Rows: [][]string{
			{"Date", "Animal", "Test_Phase", "Tray Type/Number", "1", "2"},
			{"2025-03-08", "CNT_05_03", "Training_Flat_1", "F1", "5", "2"},
		}},
	}}
	im := New(store)
	report, err := im.ImportParsed(context.Background(), parseFixture(t, "CNT_05_t.xlsx", wb), false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Rejected != 1 {
		t.Fatalf("expected exactly the bad score rejected: %+v", report)
	}
	var rejected *RowResult
	for i := range report.Rows {
		if report.Rows[i].Outcome == OutcomeRejected {
			rejected = &report.Rows[i]
		}
	}
	if rejected == nil || len(rejected.Issues) == 0 {
		t.Fatalf("rejection must carry issues: %+v", rejected)
	}
	if rejected.Issues[0].Field != "score" {
		t.Fatalf("issue field: %+v", rejected.Issues[0])
	}
	// The valid pellet in the same row still commits.
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		if _, ok := v.FindTrial("CNT_05_03", day("2025-03-08"), 1, 2); !ok {
			t.Fatal("valid trial in the same row must commit")
		}
		if _, ok := v.FindTrial("CNT_05_03", day("2025-03-08"), 1, 1); ok {
			t.Fatal("rejected trial must not commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCompactIDNormalizationAndAutoCreation(t *testing.T) {
	store := memory.NewStore(nil)
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT0503", "24.1"},
		}},
	}}
	im := New(store)
	report, err := im.ImportParsed(context.Background(), parseFixture(t, "weights.xlsx", wb), false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(report.AutoCreated) == 0 {
		t.Fatalf("expected auto-created subject/cohort: %+v", report)
	}
	if _, ok := store.GetSubject("CNT_05_03"); !ok {
		t.Fatal("compact id must normalize and auto-create the subject")
	}
	if _, ok := store.GetCohort("CNT_05"); !ok {
		t.Fatal("cohort must be derived from the subject id")
	}
}

func TestTransposedWeightsImportAndCohortStartDate(t *testing.T) {
	store := memory.NewStore(nil)
	im := New(store)
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "3d_Weights", Rows: [][]string{
			{"Animal", "2025-03-01", "2025-03-08"},
			{"CNT_05_03", "25.0", "22.5"},
			{"CNT_05_04", "", "26.3"},
		}},
	}}
	file := parseFixture(t, "CNT_05_tracking.xlsx", wb)

	report, err := im.ImportParsed(context.Background(), file, false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Rejected != 0 || report.Conflicted != 0 {
		t.Fatalf("clean transposed sheet: %+v", report)
	}

	err = store.View(context.Background(), func(v domain.TransactionView) error {
		if w, ok := v.FindWeight("CNT_05_03", day("2025-03-01")); !ok || w.Grams != 25.0 {
			t.Fatalf("first column weight: %+v ok=%v", w, ok)
		}
		if w, ok := v.FindWeight("CNT_05_04", day("2025-03-08")); !ok || w.Grams != 26.3 {
			t.Fatalf("second animal weight: %+v ok=%v", w, ok)
		}
		if len(v.WeightsOf("CNT_05_04")) != 1 {
			t.Fatal("empty cells must not produce weights")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	cohort, ok := store.GetCohort("CNT_05")
	if !ok {
		t.Fatal("cohort must be auto-created")
	}
	if !cohort.StartDate.Equal(day("2025-03-01")) {
		t.Fatalf("start date must be the earliest staged date, got %v", cohort.StartDate)
	}
}

func TestSurvivedNMarksSubjectDead(t *testing.T) {
	store := memory.NewStore(nil)
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "4_Contusion_Injury_Details", Rows: [][]string{
			{"Surgery_Date", "Animal", "Actual_kd", "Survived"},
			{"2025-03-01", "CNT_05_03", "65.0", "N"},
		}},
	}}
	im := New(store)
	if _, err := im.ImportParsed(context.Background(), parseFixture(t, "CNT_05_s.xlsx", wb), false); err != nil {
		t.Fatalf("import: %v", err)
	}
	subject, ok := store.GetSubject("CNT_05_03")
	if !ok {
		t.Fatal("subject missing")
	}
	if subject.Active {
		t.Fatal("Survived=N must mark the subject inactive")
	}
	if subject.DateOfDeath == nil || !subject.DateOfDeath.Equal(day("2025-03-01")) {
		t.Fatalf("date of death: %v", subject.DateOfDeath)
	}
}

func TestImportAllScansDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := sheet.Write(filepath.Join(dir, "CNT_05_tracking.xlsx"), trackingWorkbook()); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	mystery := sheet.Workbook{Sheets: []sheet.Sheet{{Name: "Dashboard", Rows: [][]string{{"x"}}}}}
	if err := sheet.Write(filepath.Join(dir, "notes.xlsx"), mystery); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := memory.NewStore(nil)
	im := New(store)
	reports, err := im.ImportAll(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("import all: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected a report per workbook, got %d", len(reports))
	}
	var recognized, unrecognized int
	for _, r := range reports {
		if r.Error != "" {
			unrecognized++
		} else {
			recognized++
		}
	}
	if recognized != 1 || unrecognized != 1 {
		t.Fatalf("reports: %+v", reports)
	}
	if _, ok := store.GetSubject("CNT_05_03"); !ok {
		t.Fatal("recognized workbook must still import")
	}
}

func TestImportAllContinuesPastMalformedFile(t *testing.T) {
	dir := t.TempDir()
	// Weight row with more cells than the three-column header.
	malformed := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT_05_03", "24.1", "extra", "extra"},
		}},
	}}
	if err := sheet.Write(filepath.Join(dir, "a_bad.xlsx"), malformed); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := sheet.Write(filepath.Join(dir, "b_good.xlsx"), trackingWorkbook()); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := memory.NewStore(nil)
	im := New(store)
	reports, err := im.ImportAll(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("a malformed file must not abort the scan: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected a report per workbook, got %d", len(reports))
	}
	if reports[0].Error == "" {
		t.Fatalf("malformed file must carry its parse error: %+v", reports[0])
	}
	if reports[1].Error != "" || reports[1].Inserted == 0 {
		t.Fatalf("clean file must import after the malformed one: %+v", reports[1])
	}
	if _, ok := store.GetSubject("CNT_05_03"); !ok {
		t.Fatal("clean workbook must still import")
	}
}

func TestInferCohortID(t *testing.T) {
	cases := []struct {
		path string
		want string
		ok   bool
	}{
		{"CNT_05_tracking.xlsx", "CNT_05", true},
		{"/data/Connectome_05_Data.xlsx", "CNT_05", true},
		{"cnt-07_export.xlsx", "CNT_07", true},
		{"random.xlsx", "", false},
	}
	for _, tc := range cases {
		got, ok := InferCohortID(tc.path)
		if got != tc.want || ok != tc.ok {
			t.Errorf("InferCohortID(%q) = (%q,%v), want (%q,%v)", tc.path, got, ok, tc.want, tc.ok)
		}
	}
}
