// Package legacy detects and parses the known legacy spreadsheet layouts
// into layout-tagged raw rows. No type coercion happens here: cells stay
// strings, and header labels are normalized so the importer sees one
// canonical vocabulary regardless of which synonym a given workbook used.
package legacy

import (
	"strings"

	"mousedb/internal/sheet"
	"mousedb/pkg/domain"
)

// LayoutKind is the closed set of recognized legacy tab shapes.
type LayoutKind string

const (
	// LayoutMetadata is the subject metadata tab (0a_Metadata).
	LayoutMetadata LayoutKind = "metadata"
	// LayoutWeight is the long-format weight tab (1_Weight).
	LayoutWeight LayoutKind = "weight"
	// LayoutWeightsTransposed is the transposed weight tab (3d_Weights /
	// 3e_Weights): dates as columns, animals as rows.
	LayoutWeightsTransposed LayoutKind = "weights_transposed"
	// LayoutManualTray is the per-session tray scoring tab (3b_Manual_Tray).
	LayoutManualTray LayoutKind = "manual_tray"
	// LayoutContusion is the contusion surgery detail tab
	// (4_Contusion_Injury_Details).
	LayoutContusion LayoutKind = "contusion"
)

// Canonical header labels the importer consumes.
const (
	ColSubjectID      = "Subject_ID"
	ColDate           = "Date"
	ColWeight         = "Weight"
	ColSex            = "Sex"
	ColNotes          = "Notes"
	ColDateOfBirth    = "Date_of_Birth"
	ColDateOfDeath    = "Date_of_Death"
	ColTestPhase      = "Test_Phase"
	ColTrayKind       = "Tray Type/Number"
	ColForceKDyn      = "Force_kDyn"
	ColDisplacementUm = "Displacement_um"
	ColVelocityMmS    = "Velocity_mm_s"
	ColDwellTimeS     = "Dwell_Time_s"
	ColSurgeon        = "Surgeon"
	ColSurvived       = "Survived"
)

// Detect maps a tab name to its layout kind.
func Detect(tabName string) (LayoutKind, bool) {
	name := strings.TrimSpace(tabName)
	switch name {
	case "0a_Metadata":
		return LayoutMetadata, true
	case "1_Weight":
		return LayoutWeight, true
	case "3b_Manual_Tray":
		return LayoutManualTray, true
	case "4_Contusion_Injury_Details":
		return LayoutContusion, true
	case "3d_Weights", "3e_Weights":
		return LayoutWeightsTransposed, true
	}
	return "", false
}

// synonyms maps lowercased raw header labels to the canonical vocabulary.
// Labels with no entry (e.g. the pellet columns 1..20) pass through trimmed.
var synonyms = map[string]string{
	"subject_id":          ColSubjectID,
	"subjectid":           ColSubjectID,
	"animal":              ColSubjectID,
	"animal_id":           ColSubjectID,
	"date":                ColDate,
	"surgery_date":        ColDate,
	"test_date":           ColDate,
	"weight":              ColWeight,
	"weight_g":            ColWeight,
	"weight (g)":          ColWeight,
	"sex":                 ColSex,
	"notes":               ColNotes,
	"comments":            ColNotes,
	"date_of_birth":       ColDateOfBirth,
	"dob":                 ColDateOfBirth,
	"date_of_death":       ColDateOfDeath,
	"dod":                 ColDateOfDeath,
	"test_phase":          ColTestPhase,
	"phase":               ColTestPhase,
	"tray type/number":    ColTrayKind,
	"tray_type":           ColTrayKind,
	"tray type":           ColTrayKind,
	"force_kdyn":          ColForceKDyn,
	"actual_kd":           ColForceKDyn,
	"displacement_um":     ColDisplacementUm,
	"actual_displacement": ColDisplacementUm,
	"velocity_mm_s":       ColVelocityMmS,
	"actual_velocity":     ColVelocityMmS,
	"dwell_time_s":        ColDwellTimeS,
	"actual_dwell_time":   ColDwellTimeS,
	"surgeon":             ColSurgeon,
	"survived":            ColSurvived,
}

// NormalizeLabel maps a raw header label to its canonical form.
func NormalizeLabel(raw string) string {
	label := strings.TrimSpace(raw)
	if canonical, ok := synonyms[strings.ToLower(label)]; ok {
		return canonical
	}
	return label
}

// Row is one layout-tagged raw row: normalized label -> raw cell value.
type Row struct {
	Tab    string
	Number int // 1-based source row number
	Cells  map[string]string
}

// Get returns a trimmed cell value by canonical label.
func (r Row) Get(label string) string {
	return strings.TrimSpace(r.Cells[label])
}

// Tab is one recognized tab of a parsed legacy file.
type Tab struct {
	Name   string
	Kind   LayoutKind
	Header []string
	Rows   []Row
}

// File is a fully parsed legacy workbook. Parsing is deterministic:
// re-parsing the same workbook yields identical tabs and rows.
type File struct {
	Path string
	Tabs []Tab
}

// Tab returns the parsed tab with the given layout kind.
func (f File) Tab(kind LayoutKind) (Tab, bool) {
	for _, t := range f.Tabs {
		if t.Kind == kind {
			return t, true
		}
	}
	return Tab{}, false
}

// Parse shapes a workbook into layout-tagged rows. A workbook in which no
// tab matches a known signature fails with LayoutUnrecognizedError. A row
// wider than its tab header fails with MalformedRowError.
func Parse(path string, wb sheet.Workbook) (File, error) {
	file := File{Path: path}
	for _, s := range wb.Sheets {
		kind, ok := Detect(s.Name)
		if !ok {
			continue
		}
		var (
			tab Tab
			err error
		)
		if kind == LayoutWeightsTransposed {
			tab, err = parseTransposed(path, s)
		} else {
			tab, err = parseTabular(path, s, kind)
		}
		if err != nil {
			return File{}, err
		}
		file.Tabs = append(file.Tabs, tab)
	}
	if len(file.Tabs) == 0 {
		return File{}, domain.LayoutUnrecognizedError{File: path, Tabs: wb.TabNames()}
	}
	return file, nil
}

func parseTabular(path string, s sheet.Sheet, kind LayoutKind) (Tab, error) {
	tab := Tab{Name: s.Name, Kind: kind}
	if len(s.Rows) == 0 {
		return tab, nil
	}
	for _, label := range s.Rows[0] {
		tab.Header = append(tab.Header, NormalizeLabel(label))
	}
	for i, raw := range s.Rows[1:] {
		number := i + 2
		if len(raw) > len(tab.Header) {
			return Tab{}, domain.MalformedRowError{
				File: path, Tab: s.Name, Row: number,
				Reason: "more cells than header columns",
			}
		}
		padded := sheet.PadRow(raw, len(tab.Header))
		cells := make(map[string]string, len(tab.Header))
		for j, label := range tab.Header {
			cells[label] = padded[j]
		}
		if rowEmpty(cells) {
			continue
		}
		tab.Rows = append(tab.Rows, Row{Tab: s.Name, Number: number, Cells: cells})
	}
	return tab, nil
}

// parseTransposed flattens the dates-as-columns weight sheet into the same
// row shape as the long-format weight tab: one row per (animal, date) with a
// non-empty weight cell.
func parseTransposed(path string, s sheet.Sheet) (Tab, error) {
	tab := Tab{Name: s.Name, Kind: LayoutWeightsTransposed, Header: []string{ColSubjectID, ColDate, ColWeight}}
	if len(s.Rows) == 0 {
		return tab, nil
	}
	dates := s.Rows[0]
	for i, raw := range s.Rows[1:] {
		number := i + 2
		if len(raw) > len(dates) {
			return Tab{}, domain.MalformedRowError{
				File: path, Tab: s.Name, Row: number,
				Reason: "more cells than date columns",
			}
		}
		padded := sheet.PadRow(raw, len(dates))
		animal := strings.TrimSpace(padded[0])
		if animal == "" {
			continue
		}
		for col := 1; col < len(dates); col++ {
			date := strings.TrimSpace(dates[col])
			weight := strings.TrimSpace(padded[col])
			if date == "" || weight == "" {
				continue
			}
			tab.Rows = append(tab.Rows, Row{
				Tab:    s.Name,
				Number: number,
				Cells: map[string]string{
					ColSubjectID: animal,
					ColDate:      date,
					ColWeight:    weight,
				},
			})
		}
	}
	return tab, nil
}

func rowEmpty(cells map[string]string) bool {
	for _, v := range cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
