package repository

import (
	"context"
	"errors"
	"time"

	"allocation-generator/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrReportNotFound is returned when no stored report matches a lookup
var ErrReportNotFound = errors.New("report not found")

// ReportRepository defines data access for generated allocation reports
type ReportRepository interface {
	SaveReport(ctx context.Context, record *models.ReportRecord) error
	ListReports(ctx context.Context, limit int) ([]*models.ReportRecord, error)
	GetByName(ctx context.Context, name string) (*models.ReportRecord, error)
	GetByRoot(ctx context.Context, root string) (*models.ReportRecord, error)
	FindAllocation(ctx context.Context, name, address string) (*models.AllocationRecord, error)

	// Cross-run history checks
	AllocationIDExists(ctx context.Context, id int64) (bool, error)
	AddressExists(ctx context.Context, address string) (bool, error)
}

// reportRepository implements ReportRepository
type reportRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewReportRepository creates a new ReportRepository instance
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db, batchSize: 500}
}

// BuildReportRecord converts a generated report into its stored form
func BuildReportRecord(runID, sourcePath string, report *models.Report) *models.ReportRecord {
	now := time.Now().UTC()
	record := &models.ReportRecord{
		ID:              uuid.New().String(),
		RunID:           runID,
		Name:            report.Name,
		MerkleRoot:      report.MerkleRoot,
		MaximumID:       report.MaximumID,
		Deadline:        report.Deadline,
		AllocationCount: len(report.Allocations),
		SourcePath:      sourcePath,
		CreatedAt:       now,
	}

	record.Allocations = make([]models.AllocationRecord, len(report.Allocations))
	for i, a := range report.Allocations {
		record.Allocations[i] = models.AllocationRecord{
			ID:           uuid.New().String(),
			ReportID:     record.ID,
			AllocationID: a.ID,
			Address:      a.Address,
			Amount:       a.Amount,
			Proof:        a.Proof,
			CreatedAt:    now,
		}
	}
	return record
}

// SaveReport stores the report and all of its allocations in one transaction
func (r *reportRepository) SaveReport(ctx context.Context, record *models.ReportRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Allocations").Create(record).Error; err != nil {
			return err
		}
		if len(record.Allocations) == 0 {
			return nil
		}
		return tx.CreateInBatches(record.Allocations, r.batchSize).Error
	})
}

func (r *reportRepository) ListReports(ctx context.Context, limit int) ([]*models.ReportRecord, error) {
	var records []*models.ReportRecord
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetByName returns the most recent report stored under name, with its
// allocations ordered by id
func (r *reportRepository) GetByName(ctx context.Context, name string) (*models.ReportRecord, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *reportRepository) GetByRoot(ctx context.Context, root string) (*models.ReportRecord, error) {
	return r.first(ctx, "LOWER(merkle_root) = LOWER(?)", root)
}

func (r *reportRepository) FindAllocation(ctx context.Context, name, address string) (*models.AllocationRecord, error) {
	var allocation models.AllocationRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN allocation_reports ON allocation_reports.id = allocation_entries.report_id").
		Where("allocation_reports.name = ? AND LOWER(allocation_entries.address) = LOWER(?)", name, address).
		Order("allocation_reports.created_at DESC").
		First(&allocation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

func (r *reportRepository) AllocationIDExists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AllocationRecord{}).
		Where("allocation_id = ?", id).
		Count(&count).Error
	return count > 0, err
}

func (r *reportRepository) AddressExists(ctx context.Context, address string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AllocationRecord{}).
		Where("LOWER(address) = LOWER(?)", address).
		Count(&count).Error
	return count > 0, err
}

func (r *reportRepository) first(ctx context.Context, query string, args ...interface{}) (*models.ReportRecord, error) {
	var record models.ReportRecord
	err := r.db.WithContext(ctx).
		Preload("Allocations", func(db *gorm.DB) *gorm.DB {
			return db.Order("allocation_id ASC")
		}).
		Where(query, args...).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
