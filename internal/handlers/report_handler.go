package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"allocation-generator/internal/allocation"
	"allocation-generator/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReportHandler serves stored reports and allocation proofs
type ReportHandler struct {
	reports repository.ReportRepository
	logger  logrus.FieldLogger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reports repository.ReportRepository, logger logrus.FieldLogger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logger,
	}
}

// ReportSummary one entry of the report list
type ReportSummary struct {
	Name            string `json:"name"`
	MerkleRoot      string `json:"merkleRoot"`
	MaximumID       int64  `json:"maximumId"`
	Deadline        int64  `json:"deadline"`
	AllocationCount int    `json:"allocationCount"`
	CreatedAt       int64  `json:"createdAt"`
}

// ListReports handles GET /api/reports
func (h *ReportHandler) ListReports(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			if val > 500 {
				val = 500
			}
			limit = val
		}
	}

	records, err := h.reports.ListReports(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, "list reports", err)
		return
	}

	summaries := make([]ReportSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, ReportSummary{
			Name:            r.Name,
			MerkleRoot:      r.MerkleRoot,
			MaximumID:       r.MaximumID,
			Deadline:        r.Deadline,
			AllocationCount: r.AllocationCount,
			CreatedAt:       r.CreatedAt.Unix(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"reports": summaries,
		"count":   len(summaries),
	})
}

// GetReport handles GET /api/reports/:name and returns the report in the
// same format as the generated file
func (h *ReportHandler) GetReport(c *gin.Context) {
	name := c.Param("name")

	record, err := h.reports.GetByName(c.Request.Context(), name)
	if errors.Is(err, repository.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "report not found",
			"name":  name,
		})
		return
	}
	if err != nil {
		h.internalError(c, "get report", err)
		return
	}

	c.JSON(http.StatusOK, record.ToReport())
}

// GetReportByRoot handles GET /api/roots/:root
func (h *ReportHandler) GetReportByRoot(c *gin.Context) {
	root := c.Param("root")

	record, err := h.reports.GetByRoot(c.Request.Context(), root)
	if errors.Is(err, repository.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "report not found",
			"root":  root,
		})
		return
	}
	if err != nil {
		h.internalError(c, "get report by root", err)
		return
	}

	c.JSON(http.StatusOK, record.ToReport())
}

// GetAllocation handles GET /api/reports/:name/allocations/:address
func (h *ReportHandler) GetAllocation(c *gin.Context) {
	name := c.Param("name")

	address, err := allocation.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	record, err := h.reports.FindAllocation(c.Request.Context(), name, address)
	if errors.Is(err, repository.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "allocation not found",
			"name":    name,
			"address": address,
		})
		return
	}
	if err != nil {
		h.internalError(c, "find allocation", err)
		return
	}

	c.JSON(http.StatusOK, record.ToAllocation())
}

func (h *ReportHandler) internalError(c *gin.Context, action string, err error) {
	h.logger.WithFields(logrus.Fields{
		"path":  c.Request.URL.Path,
		"error": err.Error(),
	}).Errorf("❌ Failed to %s", action)

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal error",
	})
}
