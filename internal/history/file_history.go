package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"allocation-generator/internal/report"

	"github.com/sirupsen/logrus"
)

// FileHistory indexes the ids and addresses of reports previously written
// to a directory
type FileHistory struct {
	ids       map[int64]string
	addresses map[string]string
}

// LoadFileHistory reads every *.json report in dir except skipPath, the
// output file of the current run. Files that are not allocation reports are
// skipped with a warning.
func LoadFileHistory(dir, skipPath string, logger logrus.FieldLogger) (*FileHistory, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports in %s: %w", dir, err)
	}

	skip := ""
	if skipPath != "" {
		if abs, err := filepath.Abs(skipPath); err == nil {
			skip = abs
		}
	}

	h := &FileHistory{
		ids:       make(map[int64]string),
		addresses: make(map[string]string),
	}

	loaded := 0
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == skip {
			continue
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}

		r, err := report.Read(path)
		if err != nil || r.MerkleRoot == "" {
			logger.WithFields(logrus.Fields{
				"path": path,
			}).Warn("⚠️ Skipping file that is not an allocation report")
			continue
		}

		for _, a := range r.Allocations {
			h.ids[a.ID] = r.Name
			h.addresses[strings.ToLower(a.Address)] = r.Name
		}
		loaded++
	}

	logger.WithFields(logrus.Fields{
		"dir":         dir,
		"reports":     loaded,
		"allocations": len(h.ids),
	}).Info("📚 Loaded report history")

	return h, nil
}

// IDExists reports whether a previous report used id
func (h *FileHistory) IDExists(_ context.Context, id int64) (bool, error) {
	_, ok := h.ids[id]
	return ok, nil
}

// AddressExists reports whether a previous report paid address
func (h *FileHistory) AddressExists(_ context.Context, address string) (bool, error) {
	_, ok := h.addresses[strings.ToLower(address)]
	return ok, nil
}

// ReportFor name of the report that used id, if any
func (h *FileHistory) ReportFor(id int64) (string, bool) {
	name, ok := h.ids[id]
	return name, ok
}
