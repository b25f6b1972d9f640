package export

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mousedb/internal/blob"
	"mousedb/internal/importer"
	"mousedb/internal/infra/persistence/memory"
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

func fp(v float64) *float64 { return &v }

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(nil)
	dob := day("2024-11-02")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutCohort(domain.Cohort{ID: "CNT_05", Project: "CNT"}); err != nil {
			return err
		}
		if _, err := tx.PutSubject(domain.Subject{
			ID: "CNT_05_03", CohortID: "CNT_05", Sex: domain.SexFemale,
			DateOfBirth: &dob, Active: true,
		}); err != nil {
			return err
		}
		if _, err := tx.PutWeight(domain.WeightRecord{SubjectID: "CNT_05_03", Date: day("2025-03-01"), Grams: 25.0}); err != nil {
			return err
		}
		if _, err := tx.PutWeight(domain.WeightRecord{SubjectID: "CNT_05_03", Date: day("2025-03-08"), Grams: 22.5}); err != nil {
			return err
		}
		if _, err := tx.PutSurgery(domain.SurgeryRecord{
			SubjectID: "CNT_05_03", Kind: domain.SurgeryContusion, Date: day("2025-03-01"),
			ForceKDyn: fp(65.2), DisplacementUm: fp(512), Surgeon: "RS",
		}); err != nil {
			return err
		}
		if _, err := tx.PutSession(domain.PelletSession{
			SubjectID: "CNT_05_03", Date: day("2025-03-08"), Phase: "Post-Injury_Test_1",
		}); err != nil {
			return err
		}
		scores := []domain.Score{2, 0, 1, 2}
		for i, score := range scores {
			if _, err := tx.PutTrial(domain.PelletTrial{
				SubjectID: "CNT_05_03", Date: day("2025-03-08"),
				TrayKind: domain.TrayPillar, Tray: 1, Pellet: i + 1, Score: score,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func render(t *testing.T, store *memory.Store, fn func(domain.TransactionView) (sheet.Workbook, int, error)) (sheet.Workbook, int) {
	t.Helper()
	var (
		wb   sheet.Workbook
		rows int
	)
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		var err error
		wb, rows, err = fn(v)
		return err
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return wb, rows
}

func TestCalculatedLayoutHasExactly203Columns(t *testing.T) {
	if len(odcColumns) != 203 {
		t.Fatalf("the calculated-stats layout is frozen at 203 columns, got %d", len(odcColumns))
	}
	seen := map[string]bool{}
	for _, c := range odcColumns {
		if seen[c] {
			t.Fatalf("duplicate column %q", c)
		}
		seen[c] = true
	}
}

func TestCalculatedRowsMatchColumnContract(t *testing.T) {
	store := seededStore(t)
	wb, rows := render(t, store, func(v domain.TransactionView) (sheet.Workbook, int, error) {
		return Calculated(v, "CNT_05")
	})
	if rows != 1 {
		t.Fatalf("expected one session row, got %d", rows)
	}
	s, ok := wb.Find(ODCSheetName)
	if !ok {
		t.Fatalf("missing sheet %q, tabs: %v", ODCSheetName, wb.TabNames())
	}
	for i, row := range s.Rows {
		if len(row) != 203 {
			t.Fatalf("row %d has %d cells", i, len(row))
		}
	}
	data := s.Rows[1]
	cell := func(name string) string {
		for i, c := range odcColumns {
			if c == name {
				return data[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}
	if cell("Subject_ID") != "CNT_05_03" {
		t.Errorf("subject: %q", cell("Subject_ID"))
	}
	if cell("Days_Post_Injury") != "7" {
		t.Errorf("days post injury: %q", cell("Days_Post_Injury"))
	}
	if cell("Weight_Pct") != "90.00" {
		t.Errorf("weight pct: %q", cell("Weight_Pct"))
	}
	if cell("Tray_1_Presented") != "4" || cell("Tray_1_Retrieved") != "2" {
		t.Errorf("tray block: presented %q retrieved %q", cell("Tray_1_Presented"), cell("Tray_1_Retrieved"))
	}
	if cell("Tray_1_Pellet_1") != "2" || cell("Tray_1_Pellet_5") != "" {
		t.Errorf("pellet cells: %q %q", cell("Tray_1_Pellet_1"), cell("Tray_1_Pellet_5"))
	}
	if cell("Tray_2_Presented") != "" {
		t.Errorf("unscored tray must stay empty: %q", cell("Tray_2_Presented"))
	}
	if cell("Post_injury_1_Sessions") != "1" {
		t.Errorf("phase group: %q", cell("Post_injury_1_Sessions"))
	}
	if cell("Flat_Training_Sessions") != "" {
		t.Errorf("absent phase group must stay empty: %q", cell("Flat_Training_Sessions"))
	}
}

func TestLegacyHeadersAreFrozen(t *testing.T) {
	store := seededStore(t)
	wb, _ := render(t, store, func(v domain.TransactionView) (sheet.Workbook, int, error) {
		return Legacy(v, "CNT_05")
	})
	want := map[string][]string{
		"0a_Metadata": {"SubjectID", "Date_of_Birth", "Date_of_Death", "Sex", "Cohort", "Notes"},
		"1_Weight":    {"Date", "Animal", "Weight", "Weight %", "Notes"},
		"4_Contusion_Injury_Details": {
			"Date", "Animal", "Force_kDyn", "Displacement_um", "Velocity_mm_s", "Surgeon", "Notes",
		},
	}
	for tab, header := range want {
		s, ok := wb.Find(tab)
		if !ok {
			t.Fatalf("missing tab %q", tab)
		}
		got := s.Header()
		if len(got) != len(header) {
			t.Fatalf("%s header: %v", tab, got)
		}
		for i := range header {
			if got[i] != header[i] {
				t.Fatalf("%s header[%d] = %q, want %q", tab, i, got[i], header[i])
			}
		}
	}
	trayTab, ok := wb.Find("3b_Manual_Tray")
	if !ok {
		t.Fatal("missing manual tray tab")
	}
	header := trayTab.Header()
	if len(header) != 24 || header[3] != "Tray Type/Number" || header[4] != "1" || header[23] != "20" {
		t.Fatalf("manual tray header: %v", header)
	}
	if trayTab.Rows[1][3] != "P1" {
		t.Fatalf("tray cell: %q", trayTab.Rows[1][3])
	}
}

func TestZeroSessionCohortExportsHeadersOnly(t *testing.T) {
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutCohort(domain.Cohort{ID: "CNT_09", Project: "CNT"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	wb, rows := render(t, store, func(v domain.TransactionView) (sheet.Workbook, int, error) {
		return Legacy(v, "CNT_09")
	})
	if rows != 0 {
		t.Fatalf("rows: %d", rows)
	}
	if len(wb.Sheets) != 4 {
		t.Fatalf("tabs: %v", wb.TabNames())
	}
	for _, s := range wb.Sheets {
		if len(s.Rows) != 1 {
			t.Fatalf("tab %s must be header-only, has %d rows", s.Name, len(s.Rows))
		}
	}

	calc, rows := render(t, store, func(v domain.TransactionView) (sheet.Workbook, int, error) {
		return Calculated(v, "CNT_09")
	})
	if rows != 0 || len(calc.Sheets[0].Rows) != 1 {
		t.Fatal("calculated export of an empty cohort must be header-only")
	}
}

func TestUnifiedSpansCohorts(t *testing.T) {
	store := seededStore(t)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutCohort(domain.Cohort{ID: "CNT_06", Project: "CNT"}); err != nil {
			return err
		}
		if _, err := tx.PutSubject(domain.Subject{ID: "CNT_06_01", CohortID: "CNT_06", Active: true}); err != nil {
			return err
		}
		_, err := tx.PutTrial(domain.PelletTrial{
			SubjectID: "CNT_06_01", Date: day("2025-04-01"),
			TrayKind: domain.TrayFlat, Tray: 1, Pellet: 1, Score: domain.ScoreRetrieved,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed second cohort: %v", err)
	}
	wb, rows := render(t, store, func(v domain.TransactionView) (sheet.Workbook, int, error) {
		return Unified(v)
	})
	if rows != 2 {
		t.Fatalf("expected a row per session across cohorts, got %d", rows)
	}
	s := wb.Sheets[0]
	if len(s.Rows) != 3 {
		t.Fatalf("rows: %d", len(s.Rows))
	}
	if s.Rows[1][0] != "CNT_05_03" || s.Rows[2][0] != "CNT_06_01" {
		t.Fatalf("subject order: %q %q", s.Rows[1][0], s.Rows[2][0])
	}
	if s.Rows[1][9] != "Post injury 1" {
		t.Fatalf("phase group cell: %q", s.Rows[1][9])
	}
}

func TestExportWritesFileAndArchivesArtifact(t *testing.T) {
	store := seededStore(t)
	blobs := blob.NewMemory()
	ex := New(store, blobs)
	dir := t.TempDir()

	result, err := ex.Export(context.Background(), "CNT_05", FormatLegacy, dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Path != filepath.Join(dir, "CNT_05_tracking.xlsx") {
		t.Fatalf("path: %s", result.Path)
	}
	wb, err := sheet.Open(result.Path)
	if err != nil {
		t.Fatalf("reopen export: %v", err)
	}
	if len(wb.Sheets) != 4 {
		t.Fatalf("tabs: %v", wb.TabNames())
	}
	if result.Artifact == nil || result.Artifact.ID == "" {
		t.Fatalf("expected an archived artifact: %+v", result.Artifact)
	}
	info, err := blobs.Head(context.Background(), result.Artifact.Key)
	if err != nil {
		t.Fatalf("artifact missing from blob store: %v", err)
	}
	if info.ContentType != xlsxContentType {
		t.Fatalf("content type: %q", info.ContentType)
	}

	fileBytes, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	_, rc, err := blobs.Get(context.Background(), result.Artifact.Key)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	defer rc.Close()
	archived, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(fileBytes, archived) {
		t.Fatalf("archived artifact and written file must be byte-identical (%d vs %d bytes)", len(archived), len(fileBytes))
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"legacy", FormatLegacy, true},
		{"calculated", FormatCalculated, true},
		{"odc", FormatCalculated, true},
		{"ODC", FormatCalculated, true},
		{"unified", FormatUnified, true},
		{"pdf", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseFormat(%q) = (%q, %v), want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseFormat(%q) must fail", tc.in)
		}
	}
}

func TestLegacyExportRoundTripsThroughImporter(t *testing.T) {
	store := seededStore(t)
	ex := New(store, nil)
	dir := t.TempDir()
	result, err := ex.Export(context.Background(), "CNT_05", FormatLegacy, dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	im := importer.New(store)
	report, err := im.ImportFile(context.Background(), result.Path, false)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if report.Inserted != 0 || report.Conflicted != 0 || report.Rejected != 0 {
		t.Fatalf("exported data must re-import as unchanged: %+v", report)
	}
	if report.Unchanged == 0 {
		t.Fatalf("expected unchanged rows: %+v", report)
	}
}
