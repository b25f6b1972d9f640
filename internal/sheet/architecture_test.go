package sheet

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlySheetPackageImportsExcelize ensures that only the sheet package
// wraps the xlsx library. Other packages must depend on the Workbook model
// instead of importing excelize directly.
func TestOnlySheetPackageImportsExcelize(t *testing.T) {
	forbiddenPrefix := "github.com/xuri/excelize"
	allowedPrefix := "mousedb/internal/sheet"

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "mousedb/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})

	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, allowedPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if strings.HasPrefix(importPath, forbiddenPrefix) {
				pos := filepath.Join(pkg.PkgPath, "...")
				seen[pos+": "+importPath] = struct{}{}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import of xlsx library: %s", v)
		}
		t.Fatalf("found %d forbidden excelize imports", len(violations))
	}
}
