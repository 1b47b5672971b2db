package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"allocation-generator/internal/merkle"
	"allocation-generator/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrRootMismatch      = errors.New("merkle root does not match allocations")
	ErrMaximumIDMismatch = errors.New("maximum id does not match allocations")
	ErrDeadlineMismatch  = errors.New("deadline is not the end of the named month")
	ErrDuplicateEntry    = errors.New("duplicate allocation")
)

// OutputPath report path for an input file: same directory and base name,
// with a .json extension
func OutputPath(inputPath string) string {
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".json"
}

// Write writes report as indented JSON. The file is written to a temporary
// name first and renamed, so an interrupted run leaves no partial report.
func Write(path string, report *models.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set report permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}

// Read loads a report written by Write
func Read(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &report, nil
}

// Verify checks a report end to end: ids and addresses are unique, the root
// rebuilt from the allocations matches, every proof proves its allocation,
// and maximumId, deadline and name are consistent.
func Verify(report *models.Report) error {
	if len(report.Allocations) == 0 {
		return merkle.ErrEmptyTree
	}

	ids := make(map[int64]struct{}, len(report.Allocations))
	addresses := make(map[common.Address]struct{}, len(report.Allocations))
	leaves := make([]merkle.Leaf, len(report.Allocations))

	for i, a := range report.Allocations {
		leaf, err := merkle.EncodeLeaf(a)
		if err != nil {
			return fmt.Errorf("allocation %d: %w", a.ID, err)
		}

		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("%w: id %d", ErrDuplicateEntry, a.ID)
		}
		if _, dup := addresses[leaf.Address]; dup {
			return fmt.Errorf("%w: address %s", ErrDuplicateEntry, a.Address)
		}
		ids[a.ID] = struct{}{}
		addresses[leaf.Address] = struct{}{}

		leaves[i] = leaf
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		return err
	}

	root := tree.Root()
	if !strings.EqualFold(root.Hex(), report.MerkleRoot) {
		return fmt.Errorf("%w: report has %s, allocations give %s", ErrRootMismatch, report.MerkleRoot, root.Hex())
	}

	for i, a := range report.Allocations {
		proof, err := parseProof(a.Proof)
		if err != nil {
			return fmt.Errorf("allocation %d: %w: %v", a.ID, ErrProofVerificationFailed, err)
		}
		if !merkle.VerifyProof(root, leaves[i], proof) {
			return fmt.Errorf("allocation %d: %w", a.ID, ErrProofVerificationFailed)
		}
	}

	if want := maximumID(report.Allocations); report.MaximumID != want {
		return fmt.Errorf("%w: report has %d, allocations give %d", ErrMaximumIDMismatch, report.MaximumID, want)
	}

	deadline := time.Unix(report.Deadline, 0).UTC()
	if !Deadline(deadline).Equal(deadline) || Name(deadline) != report.Name {
		return fmt.Errorf("%w: %s at %s", ErrDeadlineMismatch, report.Name, deadline.Format(time.RFC3339))
	}

	return nil
}

func parseProof(proof []string) ([]common.Hash, error) {
	hashes := make([]common.Hash, len(proof))
	for i, p := range proof {
		raw, err := hexutil.Decode(p)
		if err != nil {
			return nil, fmt.Errorf("proof element %d: %w", i, err)
		}
		if len(raw) != common.HashLength {
			return nil, fmt.Errorf("proof element %d: expected %d bytes, got %d", i, common.HashLength, len(raw))
		}
		hashes[i] = common.BytesToHash(raw)
	}
	return hashes, nil
}
