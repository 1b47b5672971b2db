package models

import (
	"time"
)

// ReportRecord a generated allocation report stored for cross-run checks
type ReportRecord struct {
	ID string `json:"id" gorm:"primaryKey"` // UUID

	RunID           string `json:"run_id" gorm:"size:36;index"`
	Name            string `json:"name" gorm:"size:32;not null;index"`
	MerkleRoot      string `json:"merkle_root" gorm:"size:66;not null;uniqueIndex"`
	MaximumID       int64  `json:"maximum_id" gorm:"not null"`
	Deadline        int64  `json:"deadline" gorm:"not null"`
	AllocationCount int    `json:"allocation_count"`
	SourcePath      string `json:"source_path"`

	Allocations []AllocationRecord `json:"allocations,omitempty" gorm:"foreignKey:ReportID"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for ReportRecord
func (ReportRecord) TableName() string {
	return "allocation_reports"
}

// AllocationRecord one allocation of a stored report
type AllocationRecord struct {
	ID string `json:"id" gorm:"primaryKey"` // UUID

	ReportID     string   `json:"report_id" gorm:"size:36;not null;index"`
	AllocationID int64    `json:"allocation_id" gorm:"not null;index"`
	Address      string   `json:"address" gorm:"size:42;not null;index"`
	Amount       string   `json:"amount" gorm:"size:78;not null"` // uint256 fits in 78 digits
	Proof        []string `json:"proof" gorm:"serializer:json;type:text"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for AllocationRecord
func (AllocationRecord) TableName() string {
	return "allocation_entries"
}

// ToAllocation converts the stored row back into a report allocation
func (r AllocationRecord) ToAllocation() Allocation {
	proof := r.Proof
	if proof == nil {
		proof = []string{}
	}
	return Allocation{
		ID:      r.AllocationID,
		Address: r.Address,
		Amount:  r.Amount,
		Proof:   proof,
	}
}

// ToReport converts the stored report and its allocations into a Report
func (r ReportRecord) ToReport() Report {
	allocations := make([]Allocation, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		allocations = append(allocations, a.ToAllocation())
	}
	return Report{
		Name:        r.Name,
		MerkleRoot:  r.MerkleRoot,
		MaximumID:   r.MaximumID,
		Deadline:    r.Deadline,
		Allocations: allocations,
	}
}
