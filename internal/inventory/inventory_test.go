package inventory

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInventory(t *testing.T) *Inventory {
	t.Helper()
	inv, err := New(6, 20, TrainMeta{TrainNumber: "12345", DepartureTime: "10:00 AM", ArrivalTime: "2:00 PM"})
	require.NoError(t, err)
	return inv
}

func TestNew_AllVacant(t *testing.T) {
	inv := newTestInventory(t)
	snap := inv.Snapshot()

	require.Len(t, snap.Coaches, 6)
	for i, c := range snap.Coaches {
		assert.Equal(t, i+1, c.CoachNumber)
		require.Len(t, c.Seats, 20)
		for j, s := range c.Seats {
			assert.Equal(t, j+1, s.SeatNumber)
			assert.Equal(t, StatusVacant, s.Status)
		}
	}
	assert.Equal(t, Stats{Vacant: 120}, inv.Stats())
}

func TestNew_RejectsEmptyLayout(t *testing.T) {
	_, err := New(0, 20, TrainMeta{})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = New(3, -1, TrainMeta{})
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestTryTransition(t *testing.T) {
	cases := []struct {
		name    string
		start   []Status // statuses applied to seat 1/1 before the call
		from    Status
		to      Status
		wantOK  bool
		wantErr error
		want    Status
	}{
		{name: "lock vacant", from: StatusVacant, to: StatusLocked, wantOK: true, want: StatusLocked},
		{name: "lock locked is a no-op", start: []Status{StatusLocked}, from: StatusVacant, to: StatusLocked, want: StatusLocked},
		{name: "confirm locked", start: []Status{StatusLocked}, from: StatusLocked, to: StatusBooked, wantOK: true, want: StatusBooked},
		{name: "confirm vacant is a no-op", from: StatusLocked, to: StatusBooked, want: StatusVacant},
		{name: "unlock locked", start: []Status{StatusLocked}, from: StatusLocked, to: StatusVacant, wantOK: true, want: StatusVacant},
		{name: "unlock booked is a no-op", start: []Status{StatusLocked, StatusBooked}, from: StatusLocked, to: StatusVacant, want: StatusBooked},
		{name: "vacant to booked is illegal", from: StatusVacant, to: StatusBooked, wantErr: ErrIllegalTransition, want: StatusVacant},
		{name: "booked to vacant is illegal", start: []Status{StatusLocked, StatusBooked}, from: StatusBooked, to: StatusVacant, wantErr: ErrIllegalTransition, want: StatusBooked},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := newTestInventory(t)
			cur := StatusVacant
			for _, next := range tc.start {
				ok, err := inv.TryTransition(1, 1, cur, next)
				require.NoError(t, err)
				require.True(t, ok)
				cur = next
			}

			ok, err := inv.TryTransition(1, 1, tc.from, tc.to)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantOK, ok)

			got, err := inv.Status(1, 1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTryTransition_NotFound(t *testing.T) {
	inv := newTestInventory(t)

	for _, ref := range []SeatRef{{0, 1}, {7, 1}, {1, 0}, {1, 21}, {-3, -3}} {
		ok, err := inv.TryTransition(ref.CoachNumber, ref.SeatNumber, StatusVacant, StatusLocked)
		assert.False(t, ok, ref.String())
		assert.True(t, errors.Is(err, ErrNotFound), ref.String())
	}
}

func TestTryTransition_ConcurrentLockHasOneWinner(t *testing.T) {
	inv := newTestInventory(t)

	const workers = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	start := make(chan struct{})

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := inv.TryTransition(2, 7, StatusVacant, StatusLocked)
			if err == nil && ok {
				wins <- struct{}{}
			}
		}()
	}
	close(start)
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
	st, _ := inv.Status(2, 7)
	assert.Equal(t, StatusLocked, st)
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	inv := newTestInventory(t)
	snap := inv.Snapshot()

	ok, err := inv.TryTransition(1, 1, StatusVacant, StatusLocked)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, StatusVacant, snap.Coaches[0].Seats[0].Status)

	snap.Coaches[0].Seats[1].Status = StatusBooked
	st, _ := inv.Status(1, 2)
	assert.Equal(t, StatusVacant, st)
}

func TestBookedSeats_CoachThenSeatOrder(t *testing.T) {
	inv := newTestInventory(t)
	for _, ref := range []SeatRef{{2, 7}, {1, 3}, {2, 1}} {
		ok, err := inv.TryTransition(ref.CoachNumber, ref.SeatNumber, StatusVacant, StatusLocked)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = inv.TryTransition(ref.CoachNumber, ref.SeatNumber, StatusLocked, StatusBooked)
		require.NoError(t, err)
		require.True(t, ok)
	}

	assert.Equal(t, []SeatRef{{1, 3}, {2, 1}, {2, 7}}, inv.BookedSeats())
	assert.Equal(t, Stats{Vacant: 117, Booked: 3}, inv.Stats())
}

func TestBookedSeats_EmptyIsNotNil(t *testing.T) {
	inv := newTestInventory(t)
	got := inv.BookedSeats()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
