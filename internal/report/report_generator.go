package report

import (
	"errors"
	"fmt"
	"time"

	"allocation-generator/internal/merkle"
	"allocation-generator/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

var ErrProofVerificationFailed = errors.New("invalid proof")

// Generate builds the report for allocations committed into tree. Every
// proof is verified before it is attached; one failure aborts the report.
// allocations is not modified, the report owns copies.
func Generate(tree *merkle.StandardTree, allocations []models.Allocation, now time.Time) (*models.Report, error) {
	if len(allocations) == 0 {
		return nil, merkle.ErrEmptyTree
	}

	finalized := make([]models.Allocation, len(allocations))
	for i, a := range allocations {
		leaf, err := merkle.EncodeLeaf(a)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: %w", a.ID, err)
		}

		proof, err := tree.Proof(leaf)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: %w", a.ID, err)
		}

		if !tree.Verify(leaf, proof) {
			return nil, fmt.Errorf("allocation %d: %w", a.ID, ErrProofVerificationFailed)
		}

		finalized[i] = models.Allocation{
			ID:      a.ID,
			Address: a.Address,
			Amount:  a.Amount,
			Proof:   proofHex(proof),
		}
	}

	deadline := Deadline(now)

	return &models.Report{
		Name:        Name(deadline),
		MerkleRoot:  tree.Root().Hex(),
		MaximumID:   maximumID(finalized),
		Deadline:    deadline.Unix(),
		Allocations: finalized,
	}, nil
}

// Deadline the last second (23:59:59 UTC) of the month now falls in
func Deadline(now time.Time) time.Time {
	now = now.UTC()
	firstOfNextMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfNextMonth.AddDate(0, 0, -1)
	return time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), 23, 59, 59, 0, time.UTC)
}

// Name report name derived from the deadline's year and month
func Name(deadline time.Time) string {
	deadline = deadline.UTC()
	return fmt.Sprintf("allocation-%d-%02d", deadline.Year(), int(deadline.Month()))
}

func maximumID(allocations []models.Allocation) int64 {
	var highest int64
	for _, a := range allocations {
		if a.ID > highest {
			highest = a.ID
		}
	}
	return highest
}

func proofHex(proof []common.Hash) []string {
	out := make([]string, len(proof))
	for i, p := range proof {
		out[i] = p.Hex()
	}
	return out
}
