package history

import (
	"context"

	"allocation-generator/internal/repository"
)

// DatabaseHistory answers history checks from the report database
type DatabaseHistory struct {
	repo repository.ReportRepository
}

// NewDatabaseHistory creates a DatabaseHistory on top of repo
func NewDatabaseHistory(repo repository.ReportRepository) *DatabaseHistory {
	return &DatabaseHistory{repo: repo}
}

func (h *DatabaseHistory) IDExists(ctx context.Context, id int64) (bool, error) {
	return h.repo.AllocationIDExists(ctx, id)
}

func (h *DatabaseHistory) AddressExists(ctx context.Context, address string) (bool, error) {
	return h.repo.AddressExists(ctx, address)
}
