// Command mousedb imports legacy tracking workbooks into the persistent
// store, resolves import conflicts, computes per-subject statistics, and
// renders export workbooks.
//
// Storage and archive backends are selected through environment variables
// (MOUSEDB_STORAGE_DRIVER, MOUSEDB_BLOB_DRIVER); see internal/core and
// internal/blob for the full list.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"mousedb/internal/blob"
	"mousedb/internal/core"
	"mousedb/internal/export"
	"mousedb/internal/importer"
	"mousedb/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:]))
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: mousedb <command> [flags]

commands:
  import      import one workbook: import [--dry-run] [--resolve R] <file.xlsx>
  import-dir  import every workbook in a directory: import-dir [--dry-run] [--resolve R] <dir>
  export      render a workbook: export --format legacy|odc|unified [--cohort ID] [--out dir]
  stats       print subject statistics: stats --subject ID
  resolve     settle one conflict: resolve --key entity/id --resolution R <file.xlsx>

R is keep_existing or accept_incoming.
`)
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		logger.Error("open store", "error", err)
		return 1
	}
	defer closeStore(store, logger)

	opts := []core.Option{core.WithLogger(logger)}
	if os.Getenv("MOUSEDB_BLOB_DRIVER") != "" {
		blobs, err := blob.Open(ctx)
		if err != nil {
			logger.Error("open blob store", "error", err)
			return 1
		}
		opts = append(opts, core.WithBlobStore(blobs))
	}
	svc := core.NewService(store, opts...)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "import":
		return runImport(ctx, svc, rest, false)
	case "import-dir":
		return runImport(ctx, svc, rest, true)
	case "export":
		return runExport(ctx, svc, rest)
	case "stats":
		return runStats(ctx, svc, rest)
	case "resolve":
		return runResolve(ctx, svc, rest)
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		return 2
	}
}

func closeStore(store core.PersistentStore, logger *slog.Logger) {
	if c, ok := store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}
}

func runImport(ctx context.Context, svc *core.Service, args []string, dir bool) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "stage and report without committing")
	resolveAll := fs.String("resolve", "", "auto-resolve every conflict: keep_existing or accept_incoming")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		usage()
		return 2
	}

	var reports []importer.Report
	if dir {
		var err error
		reports, err = svc.ImportAll(ctx, fs.Arg(0), *dryRun)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	} else {
		report, err := svc.ImportFile(ctx, fs.Arg(0), *dryRun)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		reports = []importer.Report{report}
	}

	if *resolveAll != "" && !*dryRun {
		resolution, err := parseResolution(*resolveAll)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		for _, c := range svc.PendingConflicts() {
			if err := svc.ResolveConflict(ctx, c.Key, resolution); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
		}
	}

	printJSON(reports)
	for _, r := range reports {
		if r.Error != "" || r.Rejected > 0 {
			return 1
		}
		if r.Conflicted > 0 && *resolveAll == "" {
			return 1
		}
	}
	return 0
}

func runExport(ctx context.Context, svc *core.Service, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cohort := fs.String("cohort", "", "cohort id (required for legacy and odc formats)")
	format := fs.String("format", "odc", "legacy, odc, or unified")
	out := fs.String("out", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	f, err := export.ParseFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if f != export.FormatUnified && *cohort == "" {
		fmt.Fprintln(os.Stderr, "--cohort is required for this format")
		return 2
	}
	result, err := svc.Export(ctx, *cohort, f, *out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	printJSON(result)
	return 0
}

func runStats(ctx context.Context, svc *core.Service, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	subject := fs.String("subject", "", "subject id")
	date := fs.String("date", "", "optional session date (2006-01-02) for one session only")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *subject == "" {
		fmt.Fprintln(os.Stderr, "--subject is required")
		return 2
	}
	if *date != "" {
		day, err := time.ParseInLocation("2006-01-02", *date, time.UTC)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad date %q: %v\n", *date, err)
			return 2
		}
		stats, err := svc.AggregateSession(ctx, *subject, day)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		printJSON(stats)
		return 0
	}
	stats, err := svc.AggregateSubject(ctx, *subject)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	printJSON(stats)
	return 0
}

func runResolve(ctx context.Context, svc *core.Service, args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	keyArg := fs.String("key", "", "conflict key as entity/id, from the import report")
	resArg := fs.String("resolution", "", "keep_existing or accept_incoming")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || *keyArg == "" || *resArg == "" {
		usage()
		return 2
	}
	resolution, err := parseResolution(*resArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	key, err := parseKey(*keyArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// Re-import to rebuild the conflict registry, then settle the one key.
	if _, err := svc.ImportFile(ctx, fs.Arg(0), false); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := svc.ResolveConflict(ctx, key, resolution); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func parseResolution(s string) (importer.Resolution, error) {
	switch r := importer.Resolution(s); r {
	case importer.KeepExisting, importer.AcceptIncoming:
		return r, nil
	default:
		return "", fmt.Errorf("unknown resolution %q", s)
	}
}

func parseKey(s string) (domain.Key, error) {
	entity, id, ok := strings.Cut(s, "/")
	if !ok || entity == "" || id == "" {
		return domain.Key{}, fmt.Errorf("bad key %q: want entity/id", s)
	}
	return domain.Key{Entity: domain.EntityType(entity), ID: id}, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
