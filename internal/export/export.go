// Package export renders canonical state plus derived statistics into the
// three fixed workbook layouts. Export is read-only with respect to canonical
// state; a cohort with zero sessions still yields a valid workbook with
// header-only tabs.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mousedb/internal/aggregate"
	"mousedb/internal/blob"
	"mousedb/internal/sheet"
	"mousedb/pkg/domain"
)

// Format selects one of the supported output layouts.
type Format string

const (
	// FormatLegacy is the four-tab tracking workbook the lab's spreadsheet
	// tooling consumes.
	FormatLegacy Format = "legacy"
	// FormatCalculated is the single-tab wide calculated-stats workbook.
	FormatCalculated Format = "calculated"
	// FormatUnified is the flat one-row-per-session analytic workbook.
	FormatUnified Format = "unified"
)

// ParseFormat resolves a format name from a caller. The calculated-stats
// layout answers to both "calculated" and its external name "odc".
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatLegacy:
		return FormatLegacy, nil
	case FormatCalculated, Format("odc"):
		return FormatCalculated, nil
	case FormatUnified:
		return FormatUnified, nil
	}
	return "", fmt.Errorf("unknown export format %q", name)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ODCSheetName is the single tab of the calculated-stats workbook.
const ODCSheetName = "2_ODC_Animal_Tracking"

// ArtifactInfo identifies an archived export in the blob store.
type ArtifactInfo struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Driver blob.Driver `json:"driver"`
	Size   int64       `json:"size_bytes"`
}

// Result reports where an export landed.
type Result struct {
	Path     string        `json:"path"`
	Format   Format        `json:"format"`
	Rows     int           `json:"rows"`
	Artifact *ArtifactInfo `json:"artifact,omitempty"`
}

// Exporter renders workbooks from a store and optionally archives them.
type Exporter struct {
	store domain.PersistentStore
	blobs blob.Store // nil disables archiving
}

// New returns an exporter. blobs may be nil to skip artifact archiving.
func New(store domain.PersistentStore, blobs blob.Store) *Exporter {
	return &Exporter{store: store, blobs: blobs}
}

// FileName returns the conventional output filename for a format.
func FileName(cohortID string, format Format) string {
	switch format {
	case FormatLegacy:
		return cohortID + "_tracking.xlsx"
	case FormatCalculated:
		return cohortID + "_ODC.xlsx"
	default:
		return "unified_sessions.xlsx"
	}
}

// Export renders one cohort (or, for the unified layout, all cohorts) into
// dir and archives the bytes when a blob store is configured.
func (e *Exporter) Export(ctx context.Context, cohortID string, format Format, dir string) (Result, error) {
	var (
		wb   sheet.Workbook
		rows int
		err  error
	)
	viewErr := e.store.View(ctx, func(v domain.TransactionView) error {
		switch format {
		case FormatLegacy:
			wb, rows, err = Legacy(v, cohortID)
		case FormatCalculated:
			wb, rows, err = Calculated(v, cohortID)
		case FormatUnified:
			wb, rows, err = Unified(v)
		default:
			err = fmt.Errorf("unknown export format %q", format)
		}
		return err
	})
	if viewErr != nil {
		return Result{}, viewErr
	}

	// Encode once: the on-disk file and the archived artifact share the
	// exact same bytes.
	data, err := sheet.Encode(wb)
	if err != nil {
		return Result{}, err
	}
	path := filepath.Join(dir, FileName(cohortID, format))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Result{}, fmt.Errorf("write export: %w", err)
	}
	result := Result{Path: path, Format: format, Rows: rows}

	if e.blobs != nil {
		id := uuid.NewString()
		key := fmt.Sprintf("exports/%s/%s", id, filepath.Base(path))
		info, err := e.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
			ContentType: xlsxContentType,
			Metadata: map[string]string{
				"cohort": cohortID,
				"format": string(format),
			},
		})
		if err != nil {
			return Result{}, fmt.Errorf("archive export: %w", err)
		}
		result.Artifact = &ArtifactInfo{ID: id, Key: key, Driver: e.blobs.Driver(), Size: info.Size}
	}
	return result, nil
}

func fdate(t time.Time) string { return t.Format(domain.DateLayout) }

func fdatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fdate(*t)
}

func fnum(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func fnumPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fnum(*v)
}

func fpct(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func fint(v int) string { return strconv.Itoa(v) }

func fintPtr(v *int) string {
	if v == nil {
		return ""
	}
	return fint(*v)
}

// cohortSubjects returns the cohort's subjects ordered by id.
func cohortSubjects(v domain.TransactionView, cohortID string) []domain.Subject {
	subjects := v.SubjectsOf(cohortID)
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects
}

// Legacy renders the four-tab tracking workbook. Header text and column
// order are a frozen contract with downstream spreadsheet tooling.
func Legacy(v domain.TransactionView, cohortID string) (sheet.Workbook, int, error) {
	meta := sheet.Sheet{Name: "0a_Metadata", Rows: [][]string{
		{"SubjectID", "Date_of_Birth", "Date_of_Death", "Sex", "Cohort", "Notes"},
	}}
	weight := sheet.Sheet{Name: "1_Weight", Rows: [][]string{
		{"Date", "Animal", "Weight", "Weight %", "Notes"},
	}}
	trayHeader := []string{"Date", "Animal", "Test_Phase", "Tray Type/Number"}
	for i := 1; i <= 20; i++ {
		trayHeader = append(trayHeader, fint(i))
	}
	tray := sheet.Sheet{Name: "3b_Manual_Tray", Rows: [][]string{trayHeader}}
	contusion := sheet.Sheet{Name: "4_Contusion_Injury_Details", Rows: [][]string{
		{"Date", "Animal", "Force_kDyn", "Displacement_um", "Velocity_mm_s", "Surgeon", "Notes"},
	}}

	rows := 0
	for _, subject := range cohortSubjects(v, cohortID) {
		meta.Rows = append(meta.Rows, []string{
			subject.ID,
			fdatePtr(subject.DateOfBirth),
			fdatePtr(subject.DateOfDeath),
			string(subject.Sex),
			subject.CohortID,
			subject.Notes,
		})

		weights := v.WeightsOf(subject.ID)
		var baseline float64
		if len(weights) > 0 {
			baseline = weights[0].Grams
		}
		for _, w := range weights {
			pctCell := ""
			if baseline > 0 {
				pctCell = fpct(w.Grams / baseline * 100)
			}
			weight.Rows = append(weight.Rows, []string{
				fdate(w.Date), w.SubjectID, fnum(w.Grams), pctCell, w.Notes,
			})
		}

		summary, err := aggregate.Subject(v, subject.ID)
		if err != nil {
			return sheet.Workbook{}, 0, err
		}
		for _, sess := range summary.Sessions {
			rows++
			for _, t := range sess.Trays {
				row := []string{
					fdate(sess.Date),
					sess.SubjectID,
					sess.Phase,
					fmt.Sprintf("%s%d", t.Kind, t.Tray),
				}
				scores := trialScores(v, sess.SubjectID, sess.Date, t.Tray)
				row = append(row, scores...)
				tray.Rows = append(tray.Rows, row)
			}
		}

		for _, s := range v.SurgeriesOf(subject.ID) {
			if s.Kind != domain.SurgeryContusion {
				continue
			}
			contusion.Rows = append(contusion.Rows, []string{
				fdate(s.Date),
				s.SubjectID,
				fnumPtr(s.ForceKDyn),
				fnumPtr(s.DisplacementUm),
				fnumPtr(s.VelocityMmS),
				s.Surgeon,
				s.Notes,
			})
		}
	}

	wb := sheet.Workbook{Sheets: []sheet.Sheet{meta, weight, tray, contusion}}
	return wb, rows, nil
}

// trialScores returns the 20 pellet cells for one tray, empty where the slot
// was not scored.
func trialScores(v domain.TransactionView, subjectID string, date time.Time, tray int) []string {
	cells := make([]string, 20)
	for _, trial := range v.TrialsOf(subjectID, date) {
		if trial.Tray != tray {
			continue
		}
		if trial.Pellet >= 1 && trial.Pellet <= 20 {
			cells[trial.Pellet-1] = fint(int(trial.Score))
		}
	}
	return cells
}

// Calculated renders the wide calculated-stats workbook: one row per session
// with the frozen odcColumns layout.
func Calculated(v domain.TransactionView, cohortID string) (sheet.Workbook, int, error) {
	s := sheet.Sheet{Name: ODCSheetName, Rows: [][]string{odcColumns}}
	rows := 0
	for _, subject := range cohortSubjects(v, cohortID) {
		summary, err := aggregate.Subject(v, subject.ID)
		if err != nil {
			return sheet.Workbook{}, 0, err
		}
		groups := aggregate.GroupByPhase(summary.Sessions)
		for _, sess := range summary.Sessions {
			rows++
			s.Rows = append(s.Rows, odcRow(v, subject, summary, groups, sess))
		}
	}
	return sheet.Workbook{Sheets: []sheet.Sheet{s}}, rows, nil
}

func odcRow(
	v domain.TransactionView,
	subject domain.Subject,
	summary aggregate.SubjectStats,
	groups map[string]aggregate.PhaseGroupStats,
	sess aggregate.SessionStats,
) []string {
	row := make([]string, 0, len(odcColumns))
	row = append(row,
		subject.ID,
		subject.CohortID,
		string(subject.Sex),
		fdatePtr(subject.DateOfBirth),
		fdatePtr(summary.InjuryDate),
		fnumPtr(summary.InjuryForce),
		fnumPtr(summary.InjuryDisp),
		fdate(sess.Date),
		sess.Phase,
		fintPtr(sess.DaysPostInjury()),
		fnumPtr(sess.WeightGrams),
		fpctPtr(sess.WeightPct()),
	)

	byTray := map[int]aggregate.TrayStats{}
	for _, t := range sess.Trays {
		byTray[t.Tray] = t
	}
	for tray := 1; tray <= 4; tray++ {
		t, scored := byTray[tray]
		if !scored {
			row = append(row, make([]string, 30)...)
			continue
		}
		row = append(row,
			string(t.Kind),
			fint(t.Presented),
			fint(t.Miss),
			fint(t.Displaced),
			fint(t.Retrieved),
			fint(t.Contacted()),
			fpct(t.MissPct()),
			fpct(t.DisplacedPct()),
			fpct(t.RetrievedPct()),
			fpct(t.ContactedPct()),
		)
		row = append(row, trialScores(v, sess.SubjectID, sess.Date, tray)...)
	}

	row = append(row,
		fint(sess.Presented()),
		fint(sess.Miss()),
		fint(sess.Displaced()),
		fint(sess.Retrieved()),
		fint(sess.Contacted()),
		fpct(sess.MissPct()),
		fpct(sess.DisplacedPct()),
		fpct(sess.RetrievedPct()),
		fpct(sess.ContactedPct()),
		fpct(sess.AvgMissPct()),
		fpct(sess.AvgDisplacedPct()),
		fpct(sess.AvgRetrievedPct()),
		fpct(sess.AvgContactedPct()),
	)

	row = append(row, fint(summary.TotalSessions()), fint(summary.TotalPelletsScored()))

	for _, group := range aggregate.PhaseGroups {
		g, ok := groups[group]
		if !ok {
			row = append(row, make([]string, 7)...)
			continue
		}
		row = append(row,
			fint(g.Sessions),
			fint(g.Presented),
			fpct(g.MissPct),
			fpct(g.DisplacedPct),
			fpct(g.RetrievedPct),
			fpct(g.ContactedPct),
			fpct(g.WeightPct),
		)
	}
	return row
}

func fpctPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fpct(*v)
}

// unifiedColumns is the analytic layout header. Less constrained than the
// calculated-stats contract, but stable within a process run.
var unifiedColumns = []string{
	"Subject_ID",
	"Cohort",
	"Sex",
	"Date_of_Birth",
	"Injury_Date",
	"Injury_Force_kDyn",
	"Injury_Displacement_um",
	"Date",
	"Test_Phase",
	"Phase_Group",
	"Days_Post_Injury",
	"Weight",
	"Weight_Pct",
	"Presented",
	"Miss",
	"Displaced",
	"Retrieved",
	"Contacted",
	"Miss_Pct",
	"Displaced_Pct",
	"Retrieved_Pct",
	"Contacted_Pct",
	"Avg_Retrieved_Pct",
	"Avg_Contacted_Pct",
}

// Unified renders one row per session across every cohort, for downstream
// tabular analysis.
func Unified(v domain.TransactionView) (sheet.Workbook, int, error) {
	s := sheet.Sheet{Name: "Sessions", Rows: [][]string{unifiedColumns}}
	rows := 0
	subjects := v.ListSubjects()
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	for _, subject := range subjects {
		summary, err := aggregate.Subject(v, subject.ID)
		if err != nil {
			return sheet.Workbook{}, 0, err
		}
		for _, sess := range summary.Sessions {
			rows++
			s.Rows = append(s.Rows, []string{
				subject.ID,
				subject.CohortID,
				string(subject.Sex),
				fdatePtr(subject.DateOfBirth),
				fdatePtr(summary.InjuryDate),
				fnumPtr(summary.InjuryForce),
				fnumPtr(summary.InjuryDisp),
				fdate(sess.Date),
				sess.Phase,
				aggregate.PhaseGroup(sess.Phase),
				fintPtr(sess.DaysPostInjury()),
				fnumPtr(sess.WeightGrams),
				fpctPtr(sess.WeightPct()),
				fint(sess.Presented()),
				fint(sess.Miss()),
				fint(sess.Displaced()),
				fint(sess.Retrieved()),
				fint(sess.Contacted()),
				fpct(sess.MissPct()),
				fpct(sess.DisplacedPct()),
				fpct(sess.RetrievedPct()),
				fpct(sess.ContactedPct()),
				fpct(sess.AvgRetrievedPct()),
				fpct(sess.AvgContactedPct()),
			})
		}
	}
	return sheet.Workbook{Sheets: []sheet.Sheet{s}}, rows, nil
}
