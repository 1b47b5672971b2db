package allocation

import (
	"context"
	"fmt"
	"strings"

	"allocation-generator/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Registry the claim registry consulted while assigning ids
type Registry interface {
	// CurrentMaxID highest id assigned by previous runs
	CurrentMaxID(ctx context.Context) (int64, error)
	// IsClaimed whether the allocation with id has already been claimed
	IsClaimed(ctx context.Context, id int64) (bool, error)
}

// History ids and addresses of previously generated reports
type History interface {
	IDExists(ctx context.Context, id int64) (bool, error)
	AddressExists(ctx context.Context, address string) (bool, error)
}

// Assigner turns validated rows into uniquely identified allocations
type Assigner struct {
	registry       Registry
	history        History
	checkIDs       bool
	checkAddresses bool
	concurrency    int
	validator      *Validator
	logger         logrus.FieldLogger
}

// Option configures an Assigner
type Option func(*Assigner)

// WithConcurrency number of isClaimed lookups allowed in flight
func WithConcurrency(n int) Option {
	return func(a *Assigner) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithHistory enables cross-run checks against previous reports
func WithHistory(history History, checkIDs, checkAddresses bool) Option {
	return func(a *Assigner) {
		a.history = history
		a.checkIDs = checkIDs
		a.checkAddresses = checkAddresses
	}
}

// WithLogger sets the logger used for progress and high amount warnings
func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Assigner) {
		a.logger = logger
		a.validator = NewValidator(logger)
	}
}

// NewAssigner creates an Assigner backed by registry
func NewAssigner(registry Registry, opts ...Option) *Assigner {
	a := &Assigner{
		registry:    registry,
		concurrency: 1,
		validator:   defaultValidator,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ParseRows splits the input text into rows, one allocation per line
func ParseRows(data string) []string {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return nil
	}

	rows := strings.Split(trimmed, "\n")
	for i, row := range rows {
		rows[i] = strings.TrimRight(row, "\r")
	}
	return rows
}

// candidate a row after local validation, before registry checks
type candidate struct {
	allocation models.Allocation
	row        int
	// preErr fails the row before its claim lookup, postErr after it
	preErr  error
	postErr error
}

type claimResult struct {
	claimed bool
	err     error
}

// Assign parses rows into allocations. Ids start after startingMaxID (or at
// zero when it is not positive) and follow row order. The first failing row
// in input order determines the returned error, whatever order concurrent
// registry lookups complete in.
func (a *Assigner) Assign(ctx context.Context, rows []string, startingMaxID int64) ([]models.Allocation, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	candidates := a.validateRows(rows, startingMaxID)

	// Rows after the first locally failing row are never looked up, and the
	// failing row itself only when it fails after its claim check.
	lookups := len(candidates)
	if last := candidates[len(candidates)-1]; last.preErr != nil {
		lookups--
	}

	results, err := a.lookupClaims(ctx, candidates[:lookups])
	if err != nil {
		return nil, err
	}

	allocations := make([]models.Allocation, 0, len(candidates))
	for i, c := range candidates {
		if c.preErr != nil {
			return nil, &RowError{Row: c.row, ID: -1, Err: c.preErr}
		}

		if err := a.checkRow(ctx, c, results[i]); err != nil {
			return nil, err
		}

		if c.postErr != nil {
			return nil, &RowError{Row: c.row, ID: c.allocation.ID, Err: c.postErr}
		}

		allocations = append(allocations, c.allocation)
	}

	a.logger.WithFields(logrus.Fields{
		"count":    len(allocations),
		"first_id": allocations[0].ID,
		"last_id":  allocations[len(allocations)-1].ID,
	}).Info("✅ Allocations assigned")

	return allocations, nil
}

// validateRows validates rows in order and assigns ids, stopping at the
// first row that fails. The address set is owned by this pass.
func (a *Assigner) validateRows(rows []string, startingMaxID int64) []candidate {
	nextID := int64(0)
	if startingMaxID > 0 {
		nextID = startingMaxID + 1
	}

	seen := make(map[string]struct{}, len(rows))
	candidates := make([]candidate, 0, len(rows))

	for i, row := range rows {
		c := candidate{row: i + 1}
		id := nextID
		nextID++

		address, amount, err := a.parseRow(row)
		if err != nil {
			c.preErr = err
			candidates = append(candidates, c)
			break
		}

		c.allocation = models.Allocation{
			ID:      id,
			Address: address,
			Amount:  amount,
			Proof:   []string{},
		}

		if _, dup := seen[address]; dup {
			c.postErr = fmt.Errorf("%w: %s", ErrDuplicateAddress, address)
			candidates = append(candidates, c)
			break
		}
		seen[address] = struct{}{}

		candidates = append(candidates, c)
	}

	return candidates
}

func (a *Assigner) parseRow(row string) (string, string, error) {
	columns := strings.Split(row, ",")
	if len(columns) != 2 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedRow, row)
	}

	address, err := a.validator.ParseAddress(columns[0])
	if err != nil {
		return "", "", err
	}

	amount, err := a.validator.ParseAmount(columns[1])
	if err != nil {
		return "", "", err
	}

	return address, amount, nil
}

// lookupClaims queries IsClaimed for every candidate. With a concurrency of
// one the lookups run in order and stop at the first failure; otherwise they
// run in parallel and every result is buffered by row index.
func (a *Assigner) lookupClaims(ctx context.Context, candidates []candidate) ([]claimResult, error) {
	results := make([]claimResult, len(candidates))

	if a.concurrency <= 1 {
		for i, c := range candidates {
			claimed, err := a.registry.IsClaimed(ctx, c.allocation.ID)
			results[i] = claimResult{claimed: claimed, err: err}
			if err != nil || claimed {
				// Later rows are never reached.
				return results[:i+1], nil
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			claimed, err := a.registry.IsClaimed(gctx, c.allocation.ID)
			results[i] = claimResult{claimed: claimed, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	return results, nil
}

// checkRow applies the registry result and the optional history checks
func (a *Assigner) checkRow(ctx context.Context, c candidate, result claimResult) error {
	id := c.allocation.ID

	if result.err != nil {
		return &RowError{Row: c.row, ID: id, Err: fmt.Errorf("%w: %w", ErrRegistryUnavailable, result.err)}
	}
	if result.claimed {
		return &RowError{Row: c.row, ID: id, Err: ErrAlreadyClaimed}
	}

	if a.history == nil {
		return nil
	}

	if a.checkIDs {
		exists, err := a.history.IDExists(ctx, id)
		if err != nil {
			return &RowError{Row: c.row, ID: id, Err: fmt.Errorf("failed to check id history: %w", err)}
		}
		if exists {
			return &RowError{Row: c.row, ID: id, Err: ErrHistoricalID}
		}
	}

	if a.checkAddresses {
		exists, err := a.history.AddressExists(ctx, c.allocation.Address)
		if err != nil {
			return &RowError{Row: c.row, ID: id, Err: fmt.Errorf("failed to check address history: %w", err)}
		}
		if exists {
			return &RowError{Row: c.row, ID: id, Err: fmt.Errorf("%w: %s", ErrHistoricalAddress, c.allocation.Address)}
		}
	}

	return nil
}
