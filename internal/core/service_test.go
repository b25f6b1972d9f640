package core

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"mousedb/internal/export"
	"mousedb/internal/importer"
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

func writeTrackingFixture(t *testing.T, dir string) string {
	t.Helper()
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "0a_Metadata", Rows: [][]string{
			{"Subject_ID", "Sex", "Date_of_Birth"},
			{"CNT_05_03", "F", "2024-11-02"},
		}},
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-01", "CNT_05_03", "25.0"},
			{"2025-03-08", "CNT_05_03", "22.5"},
		}},
		{Name: "3b_Manual_Tray", Rows: [][]string{
			{"Date", "Animal", "Test_Phase", "Tray Type/Number", "1", "2", "3"},
			{"2025-03-08", "CNT_05_03", "Post-Injury_Test_1", "P1", "2", "0", "1"},
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
	return path
}

func TestServiceImportAggregateExport(t *testing.T) {
	metrics := NewExpvarMetricsRecorder("")
	var traceBuf bytes.Buffer
	tracer := NewJSONTracer(&traceBuf)
	svc := NewInMemoryService(WithMetricsRecorder(metrics), WithTracer(tracer))

	dir := t.TempDir()
	path := writeTrackingFixture(t, dir)

	report, err := svc.ImportFile(context.Background(), path, false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Rejected != 0 || report.Conflicted != 0 {
		t.Fatalf("clean fixture must import cleanly: %+v", report)
	}

	sess, err := svc.AggregateSession(context.Background(), "CNT_05_03", day("2025-03-08"))
	if err != nil {
		t.Fatalf("aggregate session: %v", err)
	}
	if dpi := sess.DaysPostInjury(); dpi == nil || *dpi != 7 {
		t.Fatalf("days post injury: %v", dpi)
	}
	if sess.Presented() != 3 {
		t.Fatalf("presented: %d", sess.Presented())
	}

	subject, err := svc.AggregateSubject(context.Background(), "CNT_05_03")
	if err != nil {
		t.Fatalf("aggregate subject: %v", err)
	}
	if subject.TotalSessions() != 1 {
		t.Fatalf("total sessions: %d", subject.TotalSessions())
	}

	result, err := svc.Export(context.Background(), "CNT_05", export.FormatCalculated, dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Rows != 1 {
		t.Fatalf("export rows: %d", result.Rows)
	}
	if _, err := sheet.Open(result.Path); err != nil {
		t.Fatalf("exported workbook unreadable: %v", err)
	}

	snapshot := metrics.Snapshot()
	for _, op := range []string{"import_file", "aggregate_session", "aggregate_subject", "export"} {
		if snapshot.Results[op]["success"] == 0 {
			t.Errorf("operation %s not observed: %+v", op, snapshot.Results)
		}
	}
	if len(tracer.Entries()) < 4 {
		t.Fatalf("expected a span per operation, got %d", len(tracer.Entries()))
	}
	if traceBuf.Len() == 0 {
		t.Fatal("tracer must emit JSON lines")
	}
}

func TestServiceConflictRegistry(t *testing.T) {
	svc := NewInMemoryService()
	dir := t.TempDir()
	path := writeTrackingFixture(t, dir)
	if _, err := svc.ImportFile(context.Background(), path, false); err != nil {
		t.Fatalf("seed import: %v", err)
	}

	conflicting := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT_05_03", "23.9"},
		}},
	}}
	conflictPath := filepath.Join(dir, "CNT_05_corrections.xlsx")
	if err := sheet.Write(conflictPath, conflicting); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	report, err := svc.ImportFile(context.Background(), conflictPath, false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Conflicted != 1 {
		t.Fatalf("expected one conflict: %+v", report)
	}
	pending := svc.PendingConflicts()
	if len(pending) != 1 {
		t.Fatalf("pending conflicts: %d", len(pending))
	}
	key := pending[0].Key

	if err := svc.ResolveConflict(context.Background(), key, importer.AcceptIncoming); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(svc.PendingConflicts()) != 0 {
		t.Fatal("resolution must clear the registry")
	}
	err = svc.Store().View(context.Background(), func(v domain.TransactionView) error {
		w, _ := v.FindWeight("CNT_05_03", day("2025-03-08"))
		if w.Grams != 23.9 {
			t.Fatalf("accept_incoming must overwrite: %v", w.Grams)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	if err := svc.ResolveConflict(context.Background(), key, importer.AcceptIncoming); err == nil {
		t.Fatal("resolving a settled conflict must fail")
	}
}

func TestServiceDryRunRegistersNothing(t *testing.T) {
	svc := NewInMemoryService()
	dir := t.TempDir()
	path := writeTrackingFixture(t, dir)
	if _, err := svc.ImportFile(context.Background(), path, false); err != nil {
		t.Fatalf("seed import: %v", err)
	}

	conflicting := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT_05_03", "30.0"},
		}},
	}}
	conflictPath := filepath.Join(dir, "CNT_05_dry.xlsx")
	if err := sheet.Write(conflictPath, conflicting); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	report, err := svc.ImportFile(context.Background(), conflictPath, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if report.Conflicted != 1 {
		t.Fatalf("dry run must still report the conflict: %+v", report)
	}
	if len(svc.PendingConflicts()) != 0 {
		t.Fatal("dry run must not register conflicts")
	}
}
