package placement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
	"github.com/radieske/props-entry-platform/internal/testutil"
	"github.com/radieske/props-entry-platform/pkg/contracts/events"
)

type fakeCache map[string]entry.LineStatus

func (f fakeCache) Status(_ context.Context, id string) (entry.LineStatus, bool, error) {
	st, ok := f[id]
	return st, ok, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	placed []events.EntryPlaced
	err    error
}

func (f *fakePublisher) PublishEntryPlaced(_ context.Context, e events.EntryPlaced) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, e)
	return f.err
}

func newService(t *testing.T, cache LineStatusCache, pub Publisher) (*Service, *repo.Store) {
	t.Helper()
	s := testutil.NewStore(t)
	for i := 1; i <= 7; i++ {
		testutil.SeedLine(t, s, fmt.Sprintf("L%d", i), 4.5, entry.LineOpen)
	}
	svc := NewService(zaptest.NewLogger(t), s, ledger.New(0), Config{MinWagerCents: 10, MaxWagerCents: 1000}, cache, pub)
	return svc, s
}

func legs(ids ...string) []LegRequest {
	out := make([]LegRequest, len(ids))
	for i, id := range ids {
		out[i] = LegRequest{PropLineID: id, Pick: entry.PickMore}
	}
	return out
}

func TestPlaceEntry_DebitsAndRecordsEntry(t *testing.T) {
	pub := &fakePublisher{}
	svc, s := newService(t, nil, pub)
	testutil.SeedUser(t, s, "u1", 100)

	res, err := svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 50, Legs: legs("L1", "L2")})
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	e := res.Entry
	assert.Equal(t, entry.StatusOpen, e.Status)
	assert.Equal(t, int64(3), e.Multiplier)
	assert.Equal(t, int64(150), e.PotentialPayoutCents)
	assert.Equal(t, int64(50), testutil.Balance(t, s, "u1"))

	stored, err := s.Entry(context.Background(), "u1", e.ID)
	require.NoError(t, err)
	require.Len(t, stored.Legs, 2)
	for i, l := range stored.Legs {
		assert.Equal(t, i, l.Position)
		assert.False(t, l.Resolved())
	}

	require.Len(t, pub.placed, 1)
	assert.Equal(t, e.ID, pub.placed[0].EntryID)
	assert.Len(t, pub.placed[0].Legs, 2)
}

func TestPlaceEntry_InsufficientFundsLeavesNoTrace(t *testing.T) {
	svc, s := newService(t, nil, nil)
	testutil.SeedUser(t, s, "u1", 40)

	_, err := svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 50, Legs: legs("L1", "L2")})
	assert.ErrorIs(t, err, entry.ErrInsufficientFunds)
	assert.Equal(t, int64(40), testutil.Balance(t, s, "u1"))
	assert.Zero(t, testutil.CountRows(t, s, "entries"))
	assert.Zero(t, testutil.CountRows(t, s, "entry_legs"))
}

func TestPlaceEntry_MultiplierPerLegCount(t *testing.T) {
	want := map[int]int64{2: 3, 3: 5, 4: 10, 5: 20, 6: 35}
	svc, s := newService(t, nil, nil)
	testutil.SeedUser(t, s, "u1", 1000)

	ids := []string{"L1", "L2", "L3", "L4", "L5", "L6"}
	for n := 2; n <= 6; n++ {
		res, err := svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 20, Legs: legs(ids[:n]...)})
		require.NoError(t, err, n)
		assert.Equal(t, want[n], res.Entry.Multiplier)
		assert.Equal(t, 20*want[n], res.Entry.PotentialPayoutCents)
		assert.Equal(t, n, res.Entry.LegCount)
	}
}

func TestPlaceEntry_ValidationOrder(t *testing.T) {
	svc, s := newService(t, nil, nil)
	testutil.SeedUser(t, s, "u1", 20)
	testutil.SeedLine(t, s, "frozen", 1.5, entry.LineFrozen)

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"leg count before wager", Request{WagerCents: 1, Legs: legs("L1")}, entry.ErrInvalidLegCount},
		{"too many legs", Request{WagerCents: 50, Legs: legs("L1", "L2", "L3", "L4", "L5", "L6", "L7")}, entry.ErrInvalidLegCount},
		{"duplicate before line", Request{WagerCents: 50, Legs: legs("frozen", "frozen")}, entry.ErrDuplicateLeg},
		{"bad pick", Request{WagerCents: 50, Legs: []LegRequest{{PropLineID: "L1", Pick: "OVER"}, {PropLineID: "L2", Pick: entry.PickLess}}}, entry.ErrInvalidPick},
		{"line before wager", Request{WagerCents: 1, Legs: legs("L1", "frozen")}, entry.ErrLineUnavailable},
		{"unknown line", Request{WagerCents: 50, Legs: legs("L1", "nope")}, entry.ErrLineUnavailable},
		{"wager before funds", Request{WagerCents: 5000, Legs: legs("L1", "L2")}, entry.ErrInvalidWager},
		{"wager below min", Request{WagerCents: 5, Legs: legs("L1", "L2")}, entry.ErrInvalidWager},
		{"funds", Request{WagerCents: 50, Legs: legs("L1", "L2")}, entry.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.UserID = "u1"
			_, err := svc.PlaceEntry(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(20), testutil.Balance(t, s, "u1"))
	assert.Zero(t, testutil.CountRows(t, s, "entries"))
}

func TestPlaceEntry_CacheRejectsClosedLine(t *testing.T) {
	svc, s := newService(t, fakeCache{"L2": entry.LineFrozen}, nil)
	testutil.SeedUser(t, s, "u1", 100)

	_, err := svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 50, Legs: legs("L1", "L2")})
	assert.ErrorIs(t, err, entry.ErrLineUnavailable)
	assert.Equal(t, int64(100), testutil.Balance(t, s, "u1"))
}

func TestPlaceEntry_IdempotencyKeyReturnsOriginal(t *testing.T) {
	pub := &fakePublisher{}
	svc, s := newService(t, nil, pub)
	testutil.SeedUser(t, s, "u1", 100)

	req := Request{UserID: "u1", WagerCents: 50, Legs: legs("L1", "L2"), IdempotencyKey: "k-1"}
	first, err := svc.PlaceEntry(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.PlaceEntry(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Len(t, second.Entry.Legs, 2)

	assert.Equal(t, int64(50), testutil.Balance(t, s, "u1"))
	assert.Equal(t, 1, testutil.CountRows(t, s, "entries"))
	assert.Len(t, pub.placed, 1)

	// a mesma key de outro usuário é independente
	testutil.SeedUser(t, s, "u2", 100)
	req.UserID = "u2"
	other, err := svc.PlaceEntry(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, other.Replayed)
	assert.NotEqual(t, first.Entry.ID, other.Entry.ID)
}

func TestPlaceEntry_InsertFailureRollsBackDebit(t *testing.T) {
	svc, s := newService(t, nil, nil)
	testutil.SeedUser(t, s, "u1", 100)

	_, err := svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 20, Legs: legs("L1", "L2")})
	require.NoError(t, err)

	// ids repetidos: o INSERT da entry falha depois do débito
	ids := []string{"fixed", "fixed-leg-0", "fixed-leg-1"}
	calls := 0
	svc.newID = func() string {
		id := ids[calls%len(ids)]
		calls++
		return id
	}
	_, err = svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 20, Legs: legs("L3", "L4")})
	require.NoError(t, err)
	_, err = svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 20, Legs: legs("L5", "L6")})
	require.Error(t, err)

	assert.Equal(t, int64(60), testutil.Balance(t, s, "u1"))
	assert.Equal(t, 2, testutil.CountRows(t, s, "entries"))
	assert.Equal(t, 4, testutil.CountRows(t, s, "entry_legs"))
	// abertura + dois débitos
	assert.Equal(t, 3, testutil.CountRows(t, s, "wallet_ledger"))
}

func TestPlaceEntry_KeyedConflictWithoutWinnerIsRetryable(t *testing.T) {
	svc, s := newService(t, nil, nil)
	testutil.SeedUser(t, s, "u1", 100)

	first, err := svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 20, Legs: legs("L1", "L2")})
	require.NoError(t, err)

	// conflito de unicidade sem entry gravada para a key: o cliente deve tentar de novo
	svc.newID = func() string { return first.Entry.ID }
	_, err = svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 20, Legs: legs("L3", "L4"), IdempotencyKey: "k-race"})
	require.ErrorIs(t, err, entry.ErrTryAgain)
	assert.Equal(t, "TryAgain", entry.Code(err))

	assert.Equal(t, int64(80), testutil.Balance(t, s, "u1"))
	assert.Equal(t, 1, testutil.CountRows(t, s, "entries"))
}

func TestPlaceEntry_PublishFailureDoesNotFail(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, s := newService(t, nil, pub)
	testutil.SeedUser(t, s, "u1", 100)

	_, err := svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 50, Legs: legs("L1", "L2")})
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CountRows(t, s, "entries"))
}

func TestPlaceEntry_ConcurrentNeverOverdraws(t *testing.T) {
	svc, s := newService(t, nil, nil)
	testutil.SeedUser(t, s, "u1", 100)

	var (
		rejected []string
		mu       sync.Mutex
		wg       sync.WaitGroup
		placed   int
	)
	svc.OnRejected = func(code string) {
		mu.Lock()
		rejected = append(rejected, code)
		mu.Unlock()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceEntry(context.Background(), Request{UserID: "u1", WagerCents: 30, Legs: legs("L1", "L2")})
			if err == nil {
				mu.Lock()
				placed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, placed)
	assert.Equal(t, int64(10), testutil.Balance(t, s, "u1"))
	assert.Equal(t, 3, testutil.CountRows(t, s, "entries"))
	for _, c := range rejected {
		assert.Equal(t, "InsufficientFunds", c)
	}
}

func TestPlaceEntry_UnknownUser(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	_, err := svc.PlaceEntry(context.Background(), Request{UserID: "ghost", WagerCents: 50, Legs: legs("L1", "L2")})
	assert.ErrorIs(t, err, entry.ErrUserNotFound)
}
