package allocation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"allocation-generator/internal/models"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mu      sync.Mutex
	maxID   int64
	claimed map[int64]bool
	fail    map[int64]error
	calls   []int64
}

func (r *fakeRegistry) CurrentMaxID(ctx context.Context) (int64, error) {
	return r.maxID, nil
}

func (r *fakeRegistry) IsClaimed(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
	if err, ok := r.fail[id]; ok {
		return false, err
	}
	return r.claimed[id], nil
}

type fakeHistory struct {
	ids       map[int64]bool
	addresses map[string]bool
}

func (h *fakeHistory) IDExists(ctx context.Context, id int64) (bool, error) {
	return h.ids[id], nil
}

func (h *fakeHistory) AddressExists(ctx context.Context, address string) (bool, error) {
	return h.addresses[address], nil
}

func newTestAssigner(registry Registry, opts ...Option) *Assigner {
	logger, _ := test.NewNullLogger()
	return NewAssigner(registry, append([]Option{WithLogger(logger)}, opts...)...)
}

var validRows = []string{
	"0x253553366Da8546fC250F225fe3d25d0C782303b,1500",
	"0xA8cccccccb2E853d3A882b2E9df5357C2D892aDa,2500",
}

func TestAssignEmptyInput(t *testing.T) {
	for _, maxID := range []int64{-1, 0, 1337} {
		registry := &fakeRegistry{}
		_, err := newTestAssigner(registry).Assign(context.Background(), nil, maxID)
		require.ErrorIs(t, err, ErrEmptyInput)
		assert.Empty(t, registry.calls)
	}
}

func TestAssignValidRows(t *testing.T) {
	registry := &fakeRegistry{}

	allocations, err := newTestAssigner(registry).Assign(context.Background(), validRows, 1337)
	require.NoError(t, err)

	assert.Equal(t, []models.Allocation{
		{
			ID:      1338,
			Address: "0x253553366Da8546fC250F225fe3d25d0C782303b",
			Amount:  "1500",
			Proof:   []string{},
		},
		{
			ID:      1339,
			Address: "0xA8cCCccCcB2E853D3A882B2e9dF5357c2D892adA",
			Amount:  "2500",
			Proof:   []string{},
		},
	}, allocations)
	assert.Equal(t, []int64{1338, 1339}, registry.calls)
}

func TestAssignIDsStartAtZero(t *testing.T) {
	for _, maxID := range []int64{0, -5} {
		allocations, err := newTestAssigner(&fakeRegistry{}).Assign(context.Background(), validRows, maxID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), allocations[0].ID)
		assert.Equal(t, int64(1), allocations[1].ID)
	}
}

func TestAssignDuplicateAddress(t *testing.T) {
	rows := []string{
		"0x253553366Da8546fC250F225fe3d25d0C782303b,1500",
		"0x253553366da8546fc250f225fe3d25d0c782303b,2500",
	}

	_, err := newTestAssigner(&fakeRegistry{}).Assign(context.Background(), rows, 0)
	require.ErrorIs(t, err, ErrDuplicateAddress)

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 2, rowErr.Row)
	assert.Equal(t, int64(1), rowErr.ID)
}

func TestAssignAlreadyClaimed(t *testing.T) {
	registry := &fakeRegistry{claimed: map[int64]bool{1339: true}}

	_, err := newTestAssigner(registry).Assign(context.Background(), validRows, 1337)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Contains(t, err.Error(), "row 2 (id 1339)")
}

func TestAssignRegistryUnavailable(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	registry := &fakeRegistry{fail: map[int64]error{1338: boom}}

	_, err := newTestAssigner(registry).Assign(context.Background(), validRows, 1337)
	require.ErrorIs(t, err, ErrRegistryUnavailable)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int64{1338}, registry.calls)
}

func TestAssignRowErrors(t *testing.T) {
	tests := []struct {
		name    string
		row     string
		wantErr error
	}{
		{name: "wrong separator", row: "0x253553366Da8546fC250F225fe3d25d0C782303f;", wantErr: ErrMalformedRow},
		{name: "missing amount", row: "0x253553366Da8546fC250F225fe3d25d0C782303f", wantErr: ErrMalformedRow},
		{name: "invalid address", row: "0x253553366Da8546fC250F225fe3d25d0C782303g,1500", wantErr: ErrInvalidAddress},
		{name: "zero address", row: "0x0000000000000000000000000000000000000000,1500", wantErr: ErrZeroAddress},
		{name: "invalid amount", row: "0x253553366Da8546fC250F225fe3d25d0C782303f,a1500", wantErr: ErrNotANumber},
		{name: "zero amount", row: "0x253553366Da8546fC250F225fe3d25d0C782303f,0", wantErr: ErrNonPositiveAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := &fakeRegistry{}
			_, err := newTestAssigner(registry).Assign(context.Background(), []string{tt.row}, 1336)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, registry.calls)
		})
	}
}

func TestAssignFirstFailingRowWins(t *testing.T) {
	rows := []string{
		"0x253553366Da8546fC250F225fe3d25d0C782303b,1500",
		"0xA8cccccccb2E853d3A882b2E9df5357C2D892aDa,2500",
		"0x0ac850A303169bD762a06567cAad02a8e680E7B3,stringy",
	}

	for _, concurrency := range []int{1, 4} {
		registry := &fakeRegistry{claimed: map[int64]bool{11: true}}
		_, err := newTestAssigner(registry, WithConcurrency(concurrency)).Assign(context.Background(), rows, 10)
		require.ErrorIs(t, err, ErrAlreadyClaimed, "concurrency %d", concurrency)
		assert.NotContains(t, registry.calls, int64(13))
	}
}

func TestAssignClaimCheckedBeforeDuplicate(t *testing.T) {
	rows := []string{
		"0x253553366Da8546fC250F225fe3d25d0C782303b,1500",
		"0x253553366Da8546fC250F225fe3d25d0C782303b,1500",
	}
	registry := &fakeRegistry{claimed: map[int64]bool{1: true}}

	_, err := newTestAssigner(registry).Assign(context.Background(), rows, 0)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestAssignConcurrentMatchesSequential(t *testing.T) {
	rows := []string{
		"0x253553366Da8546fC250F225fe3d25d0C782303b,4000000000000000000",
		"0xA8cCCccCcB2E853D3A882B2e9dF5357c2D892adA,15000000000000000000",
		"0xb7cC612Ecb2E853D3a882B0f9cF5357C2D892ADb,1000000000000000001",
		"0x0ac850A303169bD762a06567cAad02a8e680E7B3,1337000000000000000",
		"0xd142812ecB2E853d3a882B0f9cF5357C2d892adb,1500000000300004000050000000",
	}

	sequential, err := newTestAssigner(&fakeRegistry{}).Assign(context.Background(), rows, 1337)
	require.NoError(t, err)

	registry := &fakeRegistry{}
	concurrent, err := newTestAssigner(registry, WithConcurrency(3)).Assign(context.Background(), rows, 1337)
	require.NoError(t, err)

	assert.Equal(t, sequential, concurrent)
	assert.ElementsMatch(t, []int64{1338, 1339, 1340, 1341, 1342}, registry.calls)
}

func TestAssignHistory(t *testing.T) {
	history := &fakeHistory{
		ids:       map[int64]bool{1339: true},
		addresses: map[string]bool{"0x253553366Da8546fC250F225fe3d25d0C782303b": true},
	}

	t.Run("disabled checks pass", func(t *testing.T) {
		_, err := newTestAssigner(&fakeRegistry{}, WithHistory(history, false, false)).Assign(context.Background(), validRows, 1337)
		require.NoError(t, err)
	})

	t.Run("historical id", func(t *testing.T) {
		_, err := newTestAssigner(&fakeRegistry{}, WithHistory(history, true, false)).Assign(context.Background(), validRows, 1337)
		require.ErrorIs(t, err, ErrHistoricalID)
	})

	t.Run("historical address", func(t *testing.T) {
		_, err := newTestAssigner(&fakeRegistry{}, WithHistory(history, false, true)).Assign(context.Background(), validRows, 1337)
		require.ErrorIs(t, err, ErrHistoricalAddress)
	})
}

func TestParseRows(t *testing.T) {
	assert.Nil(t, ParseRows("  \n"))
	assert.Equal(t,
		[]string{"a,1", "b,2"},
		ParseRows("a,1\r\nb,2\r\n\n"),
	)
}

func TestReason(t *testing.T) {
	err := &RowError{Row: 3, ID: 7, Err: ErrAlreadyClaimed}
	assert.Equal(t, "already_claimed", Reason(err))
	assert.Equal(t, "other", Reason(errors.New("x")))
}
