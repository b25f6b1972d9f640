package legacy

import (
	"errors"
	"reflect"
	"testing"

	"mousedb/internal/sheet"
	"mousedb/pkg/domain"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		tab  string
		kind LayoutKind
		ok   bool
	}{
		{"0a_Metadata", LayoutMetadata, true},
		{"1_Weight", LayoutWeight, true},
		{"3b_Manual_Tray", LayoutManualTray, true},
		{"4_Contusion_Injury_Details", LayoutContusion, true},
		{"3d_Weights", LayoutWeightsTransposed, true},
		{"3e_Weights", LayoutWeightsTransposed, true},
		{"Dashboard", "", false},
		{"2_ODC_Animal_Tracking", "", false},
	}
	for _, tc := range cases {
		kind, ok := Detect(tc.tab)
		if kind != tc.kind || ok != tc.ok {
			t.Errorf("Detect(%q) = (%q,%v), want (%q,%v)", tc.tab, kind, ok, tc.kind, tc.ok)
		}
	}
}

func TestNormalizeLabelSynonyms(t *testing.T) {
	cases := map[string]string{
		"Animal":              ColSubjectID,
		"SubjectID":           ColSubjectID,
		"Subject_ID":          ColSubjectID,
		"Surgery_Date":        ColDate,
		"Actual_kd":           ColForceKDyn,
		"Actual_displacement": ColDisplacementUm,
		"Actual_Velocity":     ColVelocityMmS,
		"17":                  "17", // pellet columns pass through
		"Weight %":            "Weight %",
	}
	for raw, want := range cases {
		if got := NormalizeLabel(raw); got != want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestParseRecognizesTabsAndNormalizesHeaders(t *testing.T) {
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "Dashboard", Rows: [][]string{{"ignore"}}},
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight", "Notes"},
			{"2025-03-08", "CNT_05_03", "24.1", ""},
			{"2025-03-09", "CNT_05_03", "24.5"}, // short row: trailing cells trimmed by readers
		}},
		{Name: "4_Contusion_Injury_Details", Rows: [][]string{
			{"Surgery_Date", "Animal", "Actual_kd", "Actual_displacement", "Actual_Velocity", "Survived"},
			{"2025-03-01", "CNT_05_03", "65.2", "512", "121", "Y"},
		}},
	}}
	file, err := Parse("CNT_05_tracking.xlsx", wb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(file.Tabs) != 2 {
		t.Fatalf("expected two recognized tabs, got %d", len(file.Tabs))
	}

	weight, ok := file.Tab(LayoutWeight)
	if !ok {
		t.Fatal("weight tab missing")
	}
	if !reflect.DeepEqual(weight.Header, []string{ColDate, ColSubjectID, ColWeight, ColNotes}) {
		t.Fatalf("weight header: %v", weight.Header)
	}
	if len(weight.Rows) != 2 {
		t.Fatalf("weight rows: %d", len(weight.Rows))
	}
	if got := weight.Rows[1].Get(ColWeight); got != "24.5" {
		t.Fatalf("short row padding broke values: %q", got)
	}

	contusion, _ := file.Tab(LayoutContusion)
	row := contusion.Rows[0]
	if row.Get(ColForceKDyn) != "65.2" || row.Get(ColDate) != "2025-03-01" || row.Get(ColSurvived) != "Y" {
		t.Fatalf("contusion row: %+v", row.Cells)
	}
	if row.Number != 2 {
		t.Fatalf("source row number: %d", row.Number)
	}
}

func TestParseTransposedWeights(t *testing.T) {
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "3d_Weights", Rows: [][]string{
			{"Animal", "2025-03-08", "2025-03-09", "2025-03-10"},
			{"CNT_05_01", "23.8", "", "24.2"},
			{"CNT_05_02", "25.0", "25.1"},
		}},
	}}
	file, err := Parse("weights.xlsx", wb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tab, ok := file.Tab(LayoutWeightsTransposed)
	if !ok {
		t.Fatal("transposed tab missing")
	}
	if len(tab.Rows) != 4 {
		t.Fatalf("expected 4 flattened rows (empty cells skipped), got %d", len(tab.Rows))
	}
	first := tab.Rows[0]
	if first.Get(ColSubjectID) != "CNT_05_01" || first.Get(ColDate) != "2025-03-08" || first.Get(ColWeight) != "23.8" {
		t.Fatalf("flattened row: %+v", first.Cells)
	}
}

func TestParseUnrecognizedWorkbook(t *testing.T) {
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "Sheet1", Rows: [][]string{{"a", "b"}}},
	}}
	_, err := Parse("mystery.xlsx", wb)
	var lu domain.LayoutUnrecognizedError
	if !errors.As(err, &lu) {
		t.Fatalf("expected LayoutUnrecognizedError, got %v", err)
	}
	if lu.File != "mystery.xlsx" || len(lu.Tabs) != 1 {
		t.Fatalf("error context: %+v", lu)
	}
}

func TestParseMalformedRow(t *testing.T) {
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT_05_03", "24.1", "extra cell"},
		}},
	}}
	_, err := Parse("bad.xlsx", wb)
	var mr domain.MalformedRowError
	if !errors.As(err, &mr) {
		t.Fatalf("expected MalformedRowError, got %v", err)
	}
	if mr.Tab != "1_Weight" || mr.Row != 2 {
		t.Fatalf("error context: %+v", mr)
	}
}

func TestParseIsRestartable(t *testing.T) {
	wb := sheet.Workbook{Sheets: []sheet.Sheet{
		{Name: "1_Weight", Rows: [][]string{
			{"Date", "Animal", "Weight"},
			{"2025-03-08", "CNT_05_03", "24.1"},
		}},
	}}
	a, err := Parse("same.xlsx", wb)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	b, err := Parse("same.xlsx", wb)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("re-parsing the same workbook diverged")
	}
}
