package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mousedb/internal/aggregate"
	"mousedb/internal/blob"
	"mousedb/internal/export"
	"mousedb/internal/importer"
	"mousedb/internal/infra/persistence/memory"
	"mousedb/pkg/domain"
)

// Service is the engine facade: import, conflict resolution, aggregation,
// and export over one persistent store. All operations are observed through
// the MetricsRecorder and Tracer ports.
type Service struct {
	store   PersistentStore
	blobs   blob.Store
	metrics MetricsRecorder
	tracer  Tracer
	logger  *slog.Logger

	mu        sync.Mutex
	conflicts map[string]importer.Conflict
}

// Option configures a Service.
type Option func(*Service)

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer attaches a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithLogger attaches a structured logger. Without it the service is silent.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBlobStore enables export archiving.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) { s.blobs = b }
}

// NewService wraps an already opened store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    slog.New(slog.DiscardHandler),
		conflicts: map[string]importer.Conflict{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService returns a service over an ephemeral store with the
// default rules engine, for tests and tooling.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(NewDefaultRulesEngine()), opts...)
}

// Store exposes the underlying persistent store.
func (s *Service) Store() PersistentStore { return s.store }

// ImportFile imports one workbook. Conflicts from a live run are retained
// until resolved through ResolveConflict; a dry run registers nothing.
func (s *Service) ImportFile(ctx context.Context, path string, dryRun bool) (importer.Report, error) {
	ctx, finish := s.instrument(ctx, "import_file")
	report, err := importer.New(s.store).ImportFile(ctx, path, dryRun)
	finish(err)
	if err != nil {
		return report, err
	}
	if !dryRun {
		s.registerConflicts(report.Conflicts)
	}
	s.logger.Info("import finished",
		"file", report.File, "dry_run", dryRun,
		"inserted", report.Inserted, "unchanged", report.Unchanged,
		"conflicted", report.Conflicted, "rejected", report.Rejected)
	return report, nil
}

// ImportAll imports every recognizable workbook in dir.
func (s *Service) ImportAll(ctx context.Context, dir string, dryRun bool) ([]importer.Report, error) {
	ctx, finish := s.instrument(ctx, "import_all")
	reports, err := importer.New(s.store).ImportAll(ctx, dir, dryRun)
	finish(err)
	if err != nil {
		return reports, err
	}
	if !dryRun {
		for _, report := range reports {
			s.registerConflicts(report.Conflicts)
		}
	}
	s.logger.Info("directory import finished", "dir", dir, "files", len(reports), "dry_run", dryRun)
	return reports, nil
}

func (s *Service) registerConflicts(conflicts []importer.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range conflicts {
		s.conflicts[c.Key.String()] = c
	}
}

// PendingConflicts lists unresolved conflicts ordered by natural key.
func (s *Service) PendingConflicts() []importer.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]importer.Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// ResolveConflict settles one pending conflict. keep_existing leaves the
// store untouched; accept_incoming overwrites under the natural key. Either
// way the conflict is cleared.
func (s *Service) ResolveConflict(ctx context.Context, key domain.Key, resolution importer.Resolution) error {
	ctx, finish := s.instrument(ctx, "resolve_conflict")
	s.mu.Lock()
	conflict, ok := s.conflicts[key.String()]
	s.mu.Unlock()
	if !ok {
		err := fmt.Errorf("no pending conflict for %s", key)
		finish(err)
		return err
	}
	err := importer.Resolve(ctx, s.store, conflict, resolution)
	finish(err)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.conflicts, key.String())
	s.mu.Unlock()
	s.logger.Info("conflict resolved", "key", key.String(), "resolution", string(resolution))
	return nil
}

// Export renders a cohort (or all cohorts for the unified layout) into dir.
func (s *Service) Export(ctx context.Context, cohortID string, format export.Format, dir string) (export.Result, error) {
	ctx, finish := s.instrument(ctx, "export")
	result, err := export.New(s.store, s.blobs).Export(ctx, cohortID, format, dir)
	finish(err)
	if err != nil {
		return result, err
	}
	s.logger.Info("export written", "path", result.Path, "format", string(format), "rows", result.Rows)
	return result, nil
}

// AggregateSession computes derived statistics for one (subject, date).
func (s *Service) AggregateSession(ctx context.Context, subjectID string, date time.Time) (aggregate.SessionStats, error) {
	ctx, finish := s.instrument(ctx, "aggregate_session")
	var stats aggregate.SessionStats
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		var err error
		stats, err = aggregate.Session(v, subjectID, date)
		return err
	})
	finish(err)
	return stats, err
}

// AggregateSubject computes the full summary for one subject.
func (s *Service) AggregateSubject(ctx context.Context, subjectID string) (aggregate.SubjectStats, error) {
	ctx, finish := s.instrument(ctx, "aggregate_subject")
	var stats aggregate.SubjectStats
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		var err error
		stats, err = aggregate.Subject(v, subjectID)
		return err
	})
	finish(err)
	return stats, err
}
