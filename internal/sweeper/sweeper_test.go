package sweeper

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hikenity/internal/model"
	"hikenity/internal/repo"
)

type sent struct {
	Token, Title, Body string
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sent
}

func (d *recordingDispatcher) Send(_ context.Context, token, title, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{token, title, body})
}

// memStore mirrors the row semantics of the postgres repository.
type memStore struct {
	mu        sync.Mutex
	trips     map[string]*model.Trip
	bookings  map[string]*model.Booking
	listCalls int

	// hooks run outside the lock
	afterListBookings func()
	afterUnlist       func()
}

func newMemStore() *memStore {
	return &memStore{trips: map[string]*model.Trip{}, bookings: map[string]*model.Booking{}}
}

func (m *memStore) ListTripsUntil(_ context.Context, cutoff time.Time) ([]model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []model.Trip
	for _, t := range m.trips {
		if !t.Date.After(cutoff) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) ListBookingsByTripAndStatus(_ context.Context, tripID string, status model.BookingStatus) ([]model.Booking, error) {
	m.mu.Lock()
	var out []model.Booking
	for _, b := range m.bookings {
		if b.TripID == tripID && b.Status == status {
			out = append(out, *b)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if m.afterListBookings != nil {
		m.afterListBookings()
	}
	return out, nil
}

func (m *memStore) UnlistBooking(_ context.Context, id string) error {
	m.mu.Lock()
	b, ok := m.bookings[id]
	switch {
	case !ok:
		m.mu.Unlock()
		return repo.ErrBookingNotFound
	case b.Status != model.BookingBooked:
		m.mu.Unlock()
		return repo.ErrBookingNotBooked
	}
	b.Status = model.BookingUnlisted
	m.mu.Unlock()

	if m.afterUnlist != nil {
		m.afterUnlist()
	}
	return nil
}

func (m *memStore) DecrementParticipantsTx(ctx context.Context, tripID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return 0, repo.ErrTripNotFound
	}
	if t.ParticipantCount > 0 {
		t.ParticipantCount--
	}
	return t.ParticipantCount, nil
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestSweeper(store Store, push Dispatcher) *Sweeper {
	log := zerolog.Nop()
	s := New(store, push, Config{}, &log)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestRun_RemindsAndUnlists(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(48 * time.Hour), PlaceName: "Beach Cleanup", ParticipantCount: 3}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked, FCMToken: "tok1"}
	push := &recordingDispatcher{}

	sum := newTestSweeper(store, push).Run(context.Background())

	require.Len(t, push.sent, 1)
	assert.Equal(t, sent{"tok1", "Trip Reminder", "Don't forget to confirm your trip for Beach Cleanup!"}, push.sent[0])
	assert.Equal(t, model.BookingUnlisted, store.bookings["b1"].Status)
	assert.Equal(t, 2, store.trips["t1"].ParticipantCount)
	assert.Equal(t, Summary{Trips: 1, Reminded: 1, Unlisted: 1}, sum)
}

func TestRun_SecondPassDoesNothing(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(48 * time.Hour), PlaceName: "Beach Cleanup", ParticipantCount: 3}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked, FCMToken: "tok1"}
	push := &recordingDispatcher{}
	s := newTestSweeper(store, push)

	s.Run(context.Background())
	sum := s.Run(context.Background())

	assert.Len(t, push.sent, 1)
	assert.Equal(t, 2, store.trips["t1"].ParticipantCount)
	assert.Equal(t, 0, sum.Unlisted)
}

func TestRun_CountFloorsAtZero(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "Ridge", ParticipantCount: 1}
	for _, id := range []string{"b1", "b2", "b3"} {
		store.bookings[id] = &model.Booking{ID: id, TripID: "t1", Status: model.BookingBooked}
	}

	sum := newTestSweeper(store, &recordingDispatcher{}).Run(context.Background())

	assert.Equal(t, 3, sum.Unlisted)
	assert.Equal(t, 0, store.trips["t1"].ParticipantCount)
}

func TestRun_SkipsTripWithoutPlaceName(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(time.Hour), ParticipantCount: 2}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked, FCMToken: "tok1"}
	push := &recordingDispatcher{}

	sum := newTestSweeper(store, push).Run(context.Background())

	assert.Empty(t, push.sent)
	assert.Equal(t, model.BookingBooked, store.bookings["b1"].Status)
	assert.Equal(t, 2, store.trips["t1"].ParticipantCount)
	assert.Equal(t, 1, sum.Skipped)
}

func TestRun_MissingTokenStillUnlists(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "Lake", ParticipantCount: 1}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked}
	push := &recordingDispatcher{}

	newTestSweeper(store, push).Run(context.Background())

	assert.Empty(t, push.sent)
	assert.Equal(t, model.BookingUnlisted, store.bookings["b1"].Status)
	assert.Equal(t, 0, store.trips["t1"].ParticipantCount)
}

func TestRun_OnlyBookedBookingsAreTouched(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "Lake", ParticipantCount: 2}
	store.bookings["c1"] = &model.Booking{ID: "c1", TripID: "t1", Status: model.BookingConfirmed, FCMToken: "tokC"}
	store.bookings["u1"] = &model.Booking{ID: "u1", TripID: "t1", Status: model.BookingUnlisted, FCMToken: "tokU"}
	push := &recordingDispatcher{}

	newTestSweeper(store, push).Run(context.Background())

	assert.Empty(t, push.sent)
	assert.Equal(t, model.BookingConfirmed, store.bookings["c1"].Status)
	assert.Equal(t, 2, store.trips["t1"].ParticipantCount)
}

func TestRun_TripsOutsideCutoffIgnored(t *testing.T) {
	store := newMemStore()
	store.trips["far"] = &model.Trip{ID: "far", Date: fixedNow.Add(10 * 24 * time.Hour), PlaceName: "Far", ParticipantCount: 1}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "far", Status: model.BookingBooked, FCMToken: "tok"}
	push := &recordingDispatcher{}

	sum := newTestSweeper(store, push).Run(context.Background())

	assert.Empty(t, push.sent)
	assert.Equal(t, Summary{}, sum)
}

func TestRun_PastTripIsIncluded(t *testing.T) {
	store := newMemStore()
	store.trips["old"] = &model.Trip{ID: "old", Date: fixedNow.Add(-24 * time.Hour), PlaceName: "Old", ParticipantCount: 1}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "old", Status: model.BookingBooked, FCMToken: "tok"}
	push := &recordingDispatcher{}

	sum := newTestSweeper(store, push).Run(context.Background())

	assert.Len(t, push.sent, 1)
	assert.Equal(t, 1, sum.Unlisted)
}

func TestRun_BoundaryRemindsWithoutUnlisting(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(DefaultWindow), PlaceName: "Edge", ParticipantCount: 1}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked, FCMToken: "tok"}
	push := &recordingDispatcher{}

	sum := newTestSweeper(store, push).Run(context.Background())

	assert.Len(t, push.sent, 1)
	assert.Equal(t, model.BookingBooked, store.bookings["b1"].Status)
	assert.Equal(t, 0, sum.Unlisted)
}

func TestRun_ClockMovesPastBoundaryMidPass(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(DefaultWindow), PlaceName: "Edge", ParticipantCount: 1}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked, FCMToken: "tok"}

	s := newTestSweeper(store, &recordingDispatcher{})
	calls := 0
	s.now = func() time.Time {
		calls++
		if calls == 1 {
			return fixedNow
		}
		return fixedNow.Add(time.Second)
	}

	sum := s.Run(context.Background())

	assert.Equal(t, 1, sum.Unlisted)
	assert.Equal(t, model.BookingUnlisted, store.bookings["b1"].Status)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListTripsUntil(ctx context.Context, cutoff time.Time) ([]model.Trip, error) {
	args := m.Called(ctx, cutoff)
	trips, _ := args.Get(0).([]model.Trip)
	return trips, args.Error(1)
}

func (m *mockStore) ListBookingsByTripAndStatus(ctx context.Context, tripID string, status model.BookingStatus) ([]model.Booking, error) {
	args := m.Called(ctx, tripID, status)
	bookings, _ := args.Get(0).([]model.Booking)
	return bookings, args.Error(1)
}

func (m *mockStore) UnlistBooking(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) DecrementParticipantsTx(ctx context.Context, tripID string) (int, error) {
	args := m.Called(ctx, tripID)
	return args.Int(0), args.Error(1)
}

func TestRun_StoreErrorEndsPass(t *testing.T) {
	store := &mockStore{}
	store.On("ListTripsUntil", mock.Anything, fixedNow.Add(DefaultWindow)).
		Return([]model.Trip{
			{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "A"},
			{ID: "t2", Date: fixedNow.Add(2 * time.Hour), PlaceName: "B"},
		}, nil)
	store.On("ListBookingsByTripAndStatus", mock.Anything, "t1", model.BookingBooked).
		Return(nil, errors.New("connection reset"))

	sum := newTestSweeper(store, &recordingDispatcher{}).Run(context.Background())

	assert.True(t, sum.Failed)
	store.AssertNotCalled(t, "ListBookingsByTripAndStatus", mock.Anything, "t2", mock.Anything)
	store.AssertExpectations(t)
}

func TestRun_ListTripsError(t *testing.T) {
	store := &mockStore{}
	store.On("ListTripsUntil", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	sum := newTestSweeper(store, &recordingDispatcher{}).Run(context.Background())

	assert.True(t, sum.Failed)
	assert.Equal(t, 0, sum.Trips)
}

func TestRun_VanishedTripIsNoOp(t *testing.T) {
	store := &mockStore{}
	store.On("ListTripsUntil", mock.Anything, mock.Anything).
		Return([]model.Trip{{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "A"}}, nil)
	store.On("ListBookingsByTripAndStatus", mock.Anything, "t1", model.BookingBooked).
		Return([]model.Booking{{ID: "b1", TripID: "t1", Status: model.BookingBooked}}, nil)
	store.On("UnlistBooking", mock.Anything, "b1").Return(nil)
	store.On("DecrementParticipantsTx", mock.Anything, "t1").Return(0, repo.ErrTripNotFound)

	sum := newTestSweeper(store, &recordingDispatcher{}).Run(context.Background())

	assert.False(t, sum.Failed)
	assert.Equal(t, 1, sum.Unlisted)
	store.AssertExpectations(t)
}

func TestRun_OverlappingPassesDecrementOnce(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "Ridge Walk", ParticipantCount: 3}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked, FCMToken: "tok1"}

	// both passes list b1 as booked before either writes
	var listed sync.WaitGroup
	listed.Add(2)
	store.afterListBookings = func() {
		listed.Done()
		listed.Wait()
	}

	var (
		wg   sync.WaitGroup
		sums [2]Summary
	)
	for i := range sums {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sums[i] = newTestSweeper(store, &recordingDispatcher{}).Run(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, sums[0].Unlisted+sums[1].Unlisted)
	assert.False(t, sums[0].Failed)
	assert.False(t, sums[1].Failed)
	assert.Equal(t, model.BookingUnlisted, store.bookings["b1"].Status)
	assert.Equal(t, 2, store.trips["t1"].ParticipantCount)
}

func TestRun_ConfirmedAfterListingIsNotUnlisted(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "Ridge Walk", ParticipantCount: 1}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked}
	store.afterListBookings = func() {
		store.mu.Lock()
		store.bookings["b1"].Status = model.BookingConfirmed
		store.mu.Unlock()
	}

	sum := newTestSweeper(store, &recordingDispatcher{}).Run(context.Background())

	assert.Equal(t, 0, sum.Unlisted)
	assert.False(t, sum.Failed)
	assert.Equal(t, model.BookingConfirmed, store.bookings["b1"].Status)
	assert.Equal(t, 1, store.trips["t1"].ParticipantCount)
}

func TestRun_CancelBetweenUnlistAndDecrement(t *testing.T) {
	store := newMemStore()
	store.trips["t1"] = &model.Trip{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "Ridge Walk", ParticipantCount: 3}
	store.bookings["b1"] = &model.Booking{ID: "b1", TripID: "t1", Status: model.BookingBooked}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.afterUnlist = cancel

	sum := newTestSweeper(store, &recordingDispatcher{}).Run(ctx)

	require.Error(t, ctx.Err())
	assert.Equal(t, 1, sum.Unlisted)
	assert.False(t, sum.Failed)
	assert.Equal(t, model.BookingUnlisted, store.bookings["b1"].Status)
	assert.Equal(t, 2, store.trips["t1"].ParticipantCount)
}

func TestRun_VanishedBookingIsSkipped(t *testing.T) {
	store := &mockStore{}
	store.On("ListTripsUntil", mock.Anything, mock.Anything).
		Return([]model.Trip{{ID: "t1", Date: fixedNow.Add(time.Hour), PlaceName: "A"}}, nil)
	store.On("ListBookingsByTripAndStatus", mock.Anything, "t1", model.BookingBooked).
		Return([]model.Booking{{ID: "b1", TripID: "t1", Status: model.BookingBooked}}, nil)
	store.On("UnlistBooking", mock.Anything, "b1").Return(repo.ErrBookingNotBooked)

	sum := newTestSweeper(store, &recordingDispatcher{}).Run(context.Background())

	assert.False(t, sum.Failed)
	assert.Equal(t, 0, sum.Unlisted)
	store.AssertNotCalled(t, "DecrementParticipantsTx", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestStart_TicksUntilCancelled(t *testing.T) {
	store := newMemStore()
	log := zerolog.Nop()
	s := New(store, &recordingDispatcher{}, Config{Interval: 20 * time.Millisecond}, &log)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()

	s.Start(ctx)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.GreaterOrEqual(t, store.listCalls, 1)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	log := zerolog.Nop()
	s := New(newMemStore(), &recordingDispatcher{}, Config{Interval: time.Second}, &log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
