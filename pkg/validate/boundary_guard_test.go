package validate

import (
	"testing"

	"mousedb/testutil"
)

// TestValidateBoundaryGuards keeps the validation layer free of storage and
// workbook concerns: it may only see the domain model.
func TestValidateBoundaryGuards(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(ip string) bool {
		return testutil.InternalImportForbidden(ip) || testutil.SpreadsheetImportForbidden(ip)
	}, "validate must not import internal or xlsx packages")
}
