package models

// Allocation a unique allocation of tokens to an address
type Allocation struct {
	ID      int64    `json:"id"`      // Globally unique, assigned in row order
	Address string   `json:"address"` // EIP-55 checksummed address
	Amount  string   `json:"amount"`  // Base units, 18 decimals of precision
	Proof   []string `json:"proof"`   // Merkle proof used when claiming tokens
}

// Report token allocation report written once per run
type Report struct {
	Name        string       `json:"name"`
	MerkleRoot  string       `json:"merkleRoot"`
	MaximumID   int64        `json:"maximumId"`
	Deadline    int64        `json:"deadline"` // Unix seconds
	Allocations []Allocation `json:"allocations"`
}

// ReportGeneratedEvent published after a report has been written
type ReportGeneratedEvent struct {
	RunID           string `json:"runId"`
	Name            string `json:"name"`
	MerkleRoot      string `json:"merkleRoot"`
	MaximumID       int64  `json:"maximumId"`
	Deadline        int64  `json:"deadline"`
	AllocationCount int    `json:"allocationCount"`
	Path            string `json:"path"`
	GeneratedAt     int64  `json:"generatedAt"`
}
