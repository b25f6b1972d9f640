package main

import (
	"path/filepath"
	"testing"

	"mousedb/internal/importer"
	"mousedb/internal/sheet"
	"mousedb/pkg/domain"
)

func TestParseResolution(t *testing.T) {
	if r, err := parseResolution("keep_existing"); err != nil || r != importer.KeepExisting {
		t.Fatalf("keep_existing: %v %v", r, err)
	}
	if r, err := parseResolution("accept_incoming"); err != nil || r != importer.AcceptIncoming {
		t.Fatalf("accept_incoming: %v %v", r, err)
	}
	if _, err := parseResolution("merge"); err == nil {
		t.Fatal("unknown resolution must fail")
	}
}

func TestParseKey(t *testing.T) {
	key, err := parseKey("weight/CNT_05_03|2025-03-08")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if key.Entity != domain.EntityWeight || key.ID != "CNT_05_03|2025-03-08" {
		t.Fatalf("key: %+v", key)
	}
	for _, bad := range []string{"", "weight", "/id", "weight/"} {
		if _, err := parseKey(bad); err == nil {
			t.Fatalf("%q must fail", bad)
		}
	}
}

func TestRunRejectsBadInvocations(t *testing.T) {
	t.Setenv("MOUSEDB_STORAGE_DRIVER", "memory")
	if code := run(nil); code != 2 {
		t.Fatalf("no args: %d", code)
	}
	if code := run([]string{"frobnicate"}); code != 2 {
		t.Fatalf("unknown command: %d", code)
	}
	if code := run([]string{"export", "--format", "pdf"}); code != 2 {
		t.Fatalf("unknown format: %d", code)
	}
	if code := run([]string{"export", "--format", "legacy"}); code != 2 {
		t.Fatalf("missing cohort: %d", code)
	}
	if code := run([]string{"stats"}); code != 2 {
		t.Fatalf("missing subject: %d", code)
	}
}

func TestRunImportAndExport(t *testing.T) {
	t.Setenv("MOUSEDB_STORAGE_DRIVER", "sqlite")
	t.Setenv("MOUSEDB_SQLITE_PATH", filepath.Join(t.TempDir(), "state.db"))

	dir := t.TempDir()
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "0a_Metadata", Rows: [][]string{
			{"Subject_ID", "Sex", "Date_of_Birth"},
			{"CNT_05_03", "F", "2024-11-02"},
		}},
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT_05_03", "22.5"},
		}},
		{Name: "3b_Manual_Tray", Rows: [][]string{
			{"Date", "Animal", "Test_Phase", "Tray Type/Number", "1", "2"},
			{"2025-03-08", "CNT_05_03", "Pre-Injury_Test", "P1", "2", "1"},
		}},
		{Name: "4_Contusion_Injury_Details", Rows: [][]string{
			{"Surgery_Date", "Animal", "Actual_kd", "Survived"},
			{"2025-03-01", "CNT_05_03", "65.2", "Y"},
		}},
	}}
	path := filepath.Join(dir, "CNT_05_tracking.xlsx")
	if err := sheet.Write(path, wb); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if code := run([]string{"import", path}); code != 0 {
		t.Fatalf("import: exit %d", code)
	}
	if code := run([]string{"stats", "--subject", "CNT_05_03"}); code != 0 {
		t.Fatalf("stats: exit %d", code)
	}
	out := t.TempDir()
	if code := run([]string{"export", "--cohort", "CNT_05", "--format", "odc", "--out", out}); code != 0 {
		t.Fatalf("export: exit %d", code)
	}
	if _, err := sheet.Open(filepath.Join(out, "CNT_05_ODC.xlsx")); err != nil {
		t.Fatalf("exported workbook: %v", err)
	}
}
