package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"allocation-generator/internal/allocation"
	"allocation-generator/internal/config"
	"allocation-generator/internal/events"
	"allocation-generator/internal/history"
	"allocation-generator/internal/merkle"
	"allocation-generator/internal/metrics"
	"allocation-generator/internal/models"
	"allocation-generator/internal/report"
	"allocation-generator/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrHistoryUnavailable is returned when history checks are enabled but no
// history source can be opened
var ErrHistoryUnavailable = errors.New("report history unavailable")

// ErrInputNotFound is returned when the input file does not exist
var ErrInputNotFound = errors.New("file not found")

// GenerateResult outcome of a successful run
type GenerateResult struct {
	RunID  string
	Path   string
	Report *models.Report
}

// AllocationService runs the allocation pipeline: read rows, assign ids,
// build the tree, write the report, then record and announce it
type AllocationService struct {
	cfg       *config.Config
	registry  allocation.Registry
	reports   repository.ReportRepository
	publisher events.Publisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

// ServiceOption configures an AllocationService
type ServiceOption func(*AllocationService)

// WithReportRepository records generated reports and enables the database
// history source
func WithReportRepository(reports repository.ReportRepository) ServiceOption {
	return func(s *AllocationService) {
		s.reports = reports
	}
}

// WithPublisher announces generated reports
func WithPublisher(publisher events.Publisher) ServiceOption {
	return func(s *AllocationService) {
		s.publisher = publisher
	}
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger logrus.FieldLogger) ServiceOption {
	return func(s *AllocationService) {
		s.logger = logger
	}
}

// WithClock overrides the clock used for the claim deadline
func WithClock(now func() time.Time) ServiceOption {
	return func(s *AllocationService) {
		s.now = now
	}
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(cfg *config.Config, registry allocation.Registry, opts ...ServiceOption) *AllocationService {
	s := &AllocationService{
		cfg:      cfg,
		registry: registry,
		logger:   logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate turns the rows of inputPath into a report written next to it.
// Nothing is written unless every row is valid.
func (s *AllocationService) Generate(ctx context.Context, inputPath string) (result *GenerateResult, err error) {
	start := time.Now()
	runID := uuid.New().String()
	log := s.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"input":  inputPath,
	})

	defer func() {
		metrics.ReportGenerationDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ReportsGenerated.WithLabelValues("failure").Inc()
			var rowErr *allocation.RowError
			if errors.As(err, &rowErr) || errors.Is(err, allocation.ErrEmptyInput) {
				metrics.RowsRejected.WithLabelValues(allocation.Reason(err)).Inc()
			}
		} else {
			metrics.ReportsGenerated.WithLabelValues("success").Inc()
		}
		s.exportMetrics(log)
	}()

	data, err := os.ReadFile(inputPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	rows := allocation.ParseRows(string(data))
	if len(rows) == 0 {
		return nil, allocation.ErrEmptyInput
	}

	log.WithField("rows", len(rows)).Info("📄 Read allocation input")

	startingMaxID, err := s.registry.CurrentMaxID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", allocation.ErrRegistryUnavailable, err)
	}

	outputPath := report.OutputPath(inputPath)

	opts := []allocation.Option{
		allocation.WithLogger(log),
		allocation.WithConcurrency(s.cfg.Registry.Concurrency),
	}
	if s.cfg.History.Enabled {
		h, err := s.openHistory(inputPath, outputPath, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, allocation.WithHistory(h, s.cfg.History.CheckIDs, s.cfg.History.CheckAddresses))
	}

	allocations, err := allocation.NewAssigner(s.registry, opts...).Assign(ctx, rows, startingMaxID)
	if err != nil {
		log.WithError(err).Error("❌ Allocation input rejected")
		return nil, err
	}

	leaves := make([]merkle.Leaf, len(allocations))
	for i, a := range allocations {
		leaf, err := merkle.EncodeLeaf(a)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: %w", a.ID, err)
		}
		leaves[i] = leaf
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}

	log.WithFields(logrus.Fields{
		"root":   tree.Root().Hex(),
		"leaves": tree.Len(),
	}).Info("🌳 Merkle tree built")

	generated, err := report.Generate(tree, allocations, s.now())
	if err != nil {
		return nil, err
	}

	if err := report.Write(outputPath, generated); err != nil {
		return nil, err
	}

	metrics.RowsProcessed.Add(float64(len(allocations)))
	metrics.ReportLastMaximumID.Set(float64(generated.MaximumID))
	metrics.ReportLastAllocations.Set(float64(len(generated.Allocations)))

	log.WithFields(logrus.Fields{
		"name":        generated.Name,
		"root":        generated.MerkleRoot,
		"maximum_id":  generated.MaximumID,
		"deadline":    generated.Deadline,
		"allocations": len(generated.Allocations),
		"output":      outputPath,
	}).Info("✅ Allocation report written")

	if s.reports != nil {
		record := repository.BuildReportRecord(runID, inputPath, generated)
		if err := s.reports.SaveReport(ctx, record); err != nil {
			return nil, fmt.Errorf("report written to %s but not recorded: %w", outputPath, err)
		}
		log.WithField("record_id", record.ID).Info("💾 Report recorded in history database")
	}

	s.publish(runID, outputPath, generated, log)

	return &GenerateResult{RunID: runID, Path: outputPath, Report: generated}, nil
}

// Verify loads the report at path and checks it end to end
func (s *AllocationService) Verify(path string) (*models.Report, error) {
	r, err := report.Read(path)
	if err != nil {
		return nil, err
	}
	if err := report.Verify(r); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"path":        path,
		"name":        r.Name,
		"root":        r.MerkleRoot,
		"allocations": len(r.Allocations),
	}).Info("✅ Report verified")

	return r, nil
}

func (s *AllocationService) openHistory(inputPath, outputPath string, log logrus.FieldLogger) (allocation.History, error) {
	switch s.cfg.History.Source {
	case config.HistorySourceDatabase:
		if s.reports == nil {
			return nil, fmt.Errorf("%w: database source requires database.dsn", ErrHistoryUnavailable)
		}
		return history.NewDatabaseHistory(s.reports), nil
	default:
		dir := s.cfg.History.Dir
		if dir == "" {
			dir = filepath.Dir(inputPath)
		}
		h, err := history.LoadFileHistory(dir, outputPath, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
		}
		return h, nil
	}
}

// publish announces the report. Failures are logged only: the report is
// already on disk.
func (s *AllocationService) publish(runID, path string, r *models.Report, log logrus.FieldLogger) {
	if s.publisher == nil {
		return
	}

	event := &models.ReportGeneratedEvent{
		RunID:           runID,
		Name:            r.Name,
		MerkleRoot:      r.MerkleRoot,
		MaximumID:       r.MaximumID,
		Deadline:        r.Deadline,
		AllocationCount: len(r.Allocations),
		Path:            path,
		GeneratedAt:     s.now().Unix(),
	}
	if err := s.publisher.PublishReportGenerated(event); err != nil {
		log.WithError(err).Warn("⚠️ Failed to publish report event")
	}
}

func (s *AllocationService) exportMetrics(log logrus.FieldLogger) {
	if s.cfg.Metrics.Textfile == "" {
		return
	}
	if err := metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
		log.WithError(err).Warn("⚠️ Failed to export metrics")
	}
}
