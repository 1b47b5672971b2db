package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"allocation-generator/internal/merkle"
	"allocation-generator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureAllocations() []models.Allocation {
	return []models.Allocation{
		{ID: 1338, Address: "0x253553366Da8546fC250F225fe3d25d0C782303b", Amount: "4000000000000000000", Proof: []string{}},
		{ID: 1339, Address: "0xA8cCCccCcB2E853D3A882B2e9dF5357c2D892adA", Amount: "15000000000000000000", Proof: []string{}},
		{ID: 1340, Address: "0xb7cC612Ecb2E853D3a882B0f9cF5357C2D892ADb", Amount: "1000000000000000001", Proof: []string{}},
		{ID: 1341, Address: "0x0ac850A303169bD762a06567cAad02a8e680E7B3", Amount: "1337000000000000000", Proof: []string{}},
		{ID: 1342, Address: "0xd142812ecB2E853d3a882B0f9cF5357C2d892adb", Amount: "1500000000300004000050000000", Proof: []string{}},
	}
}

func buildTree(t *testing.T, allocations []models.Allocation) *merkle.StandardTree {
	t.Helper()
	leaves := make([]merkle.Leaf, len(allocations))
	for i, a := range allocations {
		leaf, err := merkle.EncodeLeaf(a)
		require.NoError(t, err)
		leaves[i] = leaf
	}
	tree, err := merkle.Build(leaves)
	require.NoError(t, err)
	return tree
}

var august2024 = time.Date(2024, time.August, 14, 9, 30, 0, 0, time.UTC)

func TestGenerateExpectedFormat(t *testing.T) {
	allocations := fixtureAllocations()

	report, err := Generate(buildTree(t, allocations), allocations, august2024)
	require.NoError(t, err)

	assert.Equal(t, &models.Report{
		Name:       "allocation-2024-08",
		MerkleRoot: "0xfcbe1f06eb99ffd8d9f10473340acdc7301ca858eae5d58690cb050bc696c2ed",
		MaximumID:  1342,
		Deadline:   1725148799,
		Allocations: []models.Allocation{
			{
				ID:      1338,
				Address: "0x253553366Da8546fC250F225fe3d25d0C782303b",
				Amount:  "4000000000000000000",
				Proof: []string{
					"0x8c3eac853c1fa68d6e691679e7c0d4e0479b5951329b5361b110aa683a43743d",
					"0xda96c89e0a47f3797662790aa2bb6554d4f6687ca04c80c6a4da1c730416a7d7",
					"0xea91b53be74fd42bffd4950a4eec5c9804a9aad8c58c7184e29d6dd2b8a624b0",
				},
			},
			{
				ID:      1339,
				Address: "0xA8cCCccCcB2E853D3A882B2e9dF5357c2D892adA",
				Amount:  "15000000000000000000",
				Proof: []string{
					"0xbb4c0699b055d43a543297f6d3c060f0e84daa3a5400c88c13c7adf11b238549",
					"0x2e3f12067c64a9846d12759f632544ac7971f62af4d85cff4163fef340ef7470",
				},
			},
			{
				ID:      1340,
				Address: "0xb7cC612Ecb2E853D3a882B0f9cF5357C2D892ADb",
				Amount:  "1000000000000000001",
				Proof: []string{
					"0x92076059fcc1d7056067e9b305245bd4e5e5f4a56e6880f3c10f1671beaadd3a",
					"0xea91b53be74fd42bffd4950a4eec5c9804a9aad8c58c7184e29d6dd2b8a624b0",
				},
			},
			{
				ID:      1341,
				Address: "0x0ac850A303169bD762a06567cAad02a8e680E7B3",
				Amount:  "1337000000000000000",
				Proof: []string{
					"0xba573f01d679eb3e99a475c0c04393e3bf16ed30f9351fd3d7751c14ed554c32",
					"0x2e3f12067c64a9846d12759f632544ac7971f62af4d85cff4163fef340ef7470",
				},
			},
			{
				ID:      1342,
				Address: "0xd142812ecB2E853d3a882B0f9cF5357C2d892adb",
				Amount:  "1500000000300004000050000000",
				Proof: []string{
					"0x15745a8fa481fc776eb4411b7b9de92416aca0a72f7e3f0ce13392f90b787323",
					"0xda96c89e0a47f3797662790aa2bb6554d4f6687ca04c80c6a4da1c730416a7d7",
					"0xea91b53be74fd42bffd4950a4eec5c9804a9aad8c58c7184e29d6dd2b8a624b0",
				},
			},
		},
	}, report)

	// The caller's allocations keep their empty proofs.
	for _, a := range allocations {
		assert.Empty(t, a.Proof)
	}
}

func TestGenerateRejectsAllocationOutsideTree(t *testing.T) {
	allocations := fixtureAllocations()
	tree := buildTree(t, allocations[:3])

	_, err := Generate(tree, allocations, august2024)
	require.ErrorIs(t, err, merkle.ErrLeafNotFound)
}

func TestGenerateRejectsInvalidLeaf(t *testing.T) {
	allocations := fixtureAllocations()
	tree := buildTree(t, allocations)
	allocations[1].Amount = "lots"

	_, err := Generate(tree, allocations, august2024)
	require.ErrorIs(t, err, merkle.ErrInvalidLeafAmount)
}

func TestDeadline(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "middle of month",
			now:  august2024,
			want: time.Date(2024, time.August, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name: "last day of a 31 day month",
			now:  time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name: "leap february",
			now:  time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC),
		},
		{
			name: "december rolls the year only internally",
			now:  time.Date(2024, time.December, 31, 23, 59, 59, 999, time.UTC),
			want: time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name: "local time is converted to UTC first",
			now:  time.Date(2024, time.September, 1, 1, 0, 0, 0, time.FixedZone("CEST", 2*60*60)),
			want: time.Date(2024, time.August, 31, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deadline(tt.now)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "allocation-2024-08", Name(Deadline(august2024)))
	assert.Equal(t, "allocation-2025-01", Name(time.Date(2025, time.January, 31, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, "allocation-2024-12", Name(time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC)))
}

func TestOutputPath(t *testing.T) {
	tests := map[string]string{
		"allocations.csv":             "allocations.json",
		"/data/2024/august.csv":       "/data/2024/august.json",
		"relative/dir/rows.txt":       "relative/dir/rows.json",
		"no-extension":                "no-extension.json",
		"/data/report.2024-08.backup": "/data/report.2024-08.json",
	}

	for input, want := range tests {
		assert.Equal(t, want, OutputPath(input), input)
	}
}

func TestWriteAndRead(t *testing.T) {
	allocations := fixtureAllocations()
	report, err := Generate(buildTree(t, allocations), allocations, august2024)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "allocations.json")
	require.NoError(t, Write(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasSuffix(content, "}\n"))
	assert.True(t, strings.HasPrefix(content, "{\n  \"name\": \"allocation-2024-08\",\n  \"merkleRoot\""))
	assert.Less(t, strings.Index(content, `"maximumId"`), strings.Index(content, `"deadline"`))
	assert.Less(t, strings.Index(content, `"deadline"`), strings.Index(content, `"allocations"`))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, report, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestVerify(t *testing.T) {
	generate := func(t *testing.T) *models.Report {
		allocations := fixtureAllocations()
		report, err := Generate(buildTree(t, allocations), allocations, august2024)
		require.NoError(t, err)
		return report
	}

	t.Run("valid report", func(t *testing.T) {
		assert.NoError(t, Verify(generate(t)))
	})

	t.Run("tampered amount", func(t *testing.T) {
		report := generate(t)
		report.Allocations[0].Amount = "4000000000000000001"
		assert.ErrorIs(t, Verify(report), ErrRootMismatch)
	})

	t.Run("swapped proof", func(t *testing.T) {
		report := generate(t)
		report.Allocations[0].Proof = report.Allocations[1].Proof
		assert.ErrorIs(t, Verify(report), ErrProofVerificationFailed)
	})

	t.Run("malformed proof", func(t *testing.T) {
		report := generate(t)
		report.Allocations[2].Proof = []string{"0x1234"}
		assert.ErrorIs(t, Verify(report), ErrProofVerificationFailed)
	})

	t.Run("wrong maximum id", func(t *testing.T) {
		report := generate(t)
		report.MaximumID = 1341
		assert.ErrorIs(t, Verify(report), ErrMaximumIDMismatch)
	})

	t.Run("name does not match deadline", func(t *testing.T) {
		report := generate(t)
		report.Name = "allocation-2024-09"
		assert.ErrorIs(t, Verify(report), ErrDeadlineMismatch)
	})

	t.Run("duplicate address", func(t *testing.T) {
		report := generate(t)
		report.Allocations[1].Address = strings.ToLower(report.Allocations[0].Address)
		assert.ErrorIs(t, Verify(report), ErrDuplicateEntry)
	})

	t.Run("empty report", func(t *testing.T) {
		assert.ErrorIs(t, Verify(&models.Report{}), merkle.ErrEmptyTree)
	})
}
