package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mousedb/pkg/domain"
)

// dateFormats lists the date renderings seen in historical workbooks. The
// canonical layout comes first; the rest cover spreadsheet display formats.
var dateFormats = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05",
	"1/2/2006",
	"1/2/06",
	"01-02-2006",
	"2006/01/02",
	"2-Jan-06",
	"Jan 2, 2006",
}

func parseDate(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", raw)
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := parseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseFloat(raw string) (float64, error) {
	v := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "g"))
	if v == "" {
		return 0, fmt.Errorf("empty number")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse number %q", raw)
	}
	return f, nil
}

func parseOptionalFloat(raw string) (*float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	f, err := parseFloat(raw)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseInt(raw string) (int, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, fmt.Errorf("empty number")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// Spreadsheets render integer scores as "2.0" after touching a cell.
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("cannot parse integer %q", raw)
		}
		return int(f), nil
	}
	return n, nil
}

var trayPattern = regexp.MustCompile(`^([A-Za-z])\s*(\d+)$`)

// parseTray splits the legacy "Tray Type/Number" cell ("P2", "F 1") into
// difficulty class and tray index.
func parseTray(raw string) (domain.TrayKind, int, error) {
	m := trayPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", 0, fmt.Errorf("cannot parse tray %q (expected e.g. P2)", raw)
	}
	number, _ := strconv.Atoi(m[2])
	return domain.TrayKind(strings.ToUpper(m[1])), number, nil
}

// projectAliases maps long-form project names in filenames to the project
// code used in ids.
var projectAliases = map[string]string{
	"CONNECTOME": "CNT",
}

var cohortInFilename = regexp.MustCompile(`([A-Za-z]+)[_-](\d{2})`)

// InferCohortID extracts a cohort id from a workbook filename
// ("CNT_05_tracking.xlsx" or "Connectome_05_Data.xlsx" -> "CNT_05").
func InferCohortID(path string) (string, bool) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := cohortInFilename.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	project := strings.ToUpper(m[1])
	if alias, ok := projectAliases[project]; ok {
		project = alias
	}
	id := project + "_" + m[2]
	if !domain.ValidCohortID(id) {
		return "", false
	}
	return id, true
}
