package booking_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/inventory"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// MockNotifier records published booking events.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) BookingConfirmed(ctx context.Context, b *model.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockNotifier) BookingCancelled(ctx context.Context, b *model.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

// MockUserDirectory is a testify mock of booking.UserDirectory.
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// flakyInventory wraps the real engine and injects failures.
type flakyInventory struct {
	*inventory.Inventory

	mu              sync.Mutex
	reserveFailures int  // upcoming Reserve calls that fail
	reserveCommits  bool // whether a failing Reserve still reserves
	releaseFailures int
	reserveCalls    int
	releaseCalls    int
}

var errTransport = errors.New("connection reset by peer")

func (f *flakyInventory) Reserve(ctx context.Context, eventID int64, count int, bookingID string) ([]int, error) {
	f.mu.Lock()
	f.reserveCalls++
	fail := f.reserveFailures > 0
	if fail {
		f.reserveFailures--
	}
	commits := f.reserveCommits
	f.mu.Unlock()

	if fail {
		if commits {
			_, _ = f.Inventory.Reserve(ctx, eventID, count, bookingID)
		}
		return nil, errTransport
	}
	return f.Inventory.Reserve(ctx, eventID, count, bookingID)
}

func (f *flakyInventory) Release(ctx context.Context, eventID int64, bookingID string) (int, error) {
	f.mu.Lock()
	f.releaseCalls++
	fail := f.releaseFailures > 0
	if fail {
		f.releaseFailures--
	}
	f.mu.Unlock()
	if fail {
		return 0, errTransport
	}
	return f.Inventory.Release(ctx, eventID, bookingID)
}

// flakyLedger fails SetStatus for the given status.  With commitFailed
// set the failing write is applied before the error is returned.
type flakyLedger struct {
	*ledger.Ledger
	failStatus   model.BookingStatus
	commitFailed bool
	failDelete   bool

	mu          sync.Mutex
	getFailures int
}

func (l *flakyLedger) SetStatus(ctx context.Context, id string, status model.BookingStatus, seats []int) error {
	if status == l.failStatus {
		if l.commitFailed {
			if err := l.Ledger.SetStatus(ctx, id, status, seats); err != nil {
				return err
			}
			return errors.New("i/o timeout")
		}
		return errors.New("deadlock found when trying to get lock")
	}
	return l.Ledger.SetStatus(ctx, id, status, seats)
}

func (l *flakyLedger) Get(ctx context.Context, id string) (*model.Booking, error) {
	l.mu.Lock()
	fail := l.getFailures > 0
	if fail {
		l.getFailures--
	}
	l.mu.Unlock()
	if fail {
		return nil, errors.New("lost connection to MySQL server")
	}
	return l.Ledger.Get(ctx, id)
}

func (l *flakyLedger) Delete(ctx context.Context, id string) error {
	if l.failDelete {
		return errors.New("lost connection to MySQL server")
	}
	return l.Ledger.Delete(ctx, id)
}

type fixture struct {
	users    *repository.MemoryUserRepo
	seats    *repository.MemorySeatRepo
	bookings *repository.MemoryBookingRepo
	inv      *flakyInventory
	ledger   *flakyLedger
	notifier *MockNotifier
	coord    *booking.Coordinator
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		users:    repository.NewMemoryUserRepo(),
		seats:    repository.NewMemorySeatRepo(),
		bookings: repository.NewMemoryBookingRepo(),
		notifier: &MockNotifier{},
	}
	require.NoError(t, f.users.Create(ctx, &model.User{ID: 1, Name: "John Doe", Email: "john@example.com"}))
	require.NoError(t, f.users.Create(ctx, &model.User{ID: 2, Name: "Jane Smith", Email: "jane@example.com"}))
	require.NoError(t, f.seats.CreateEvent(ctx, &model.Event{ID: 101, Name: "Concert", TotalSeats: capacity}))

	f.inv = &flakyInventory{Inventory: inventory.New(f.seats, nil)}
	f.ledger = &flakyLedger{Ledger: ledger.New(f.bookings)}
	f.notifier.On("BookingConfirmed", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("BookingCancelled", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.coord = booking.NewCoordinator(f.users, f.inv, f.ledger,
		booking.WithNotifier(f.notifier),
		booking.WithCallTimeout(time.Second),
		booking.WithRetryPolicy(booking.RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}),
	)
	return f
}

func (f *fixture) free(t *testing.T) int {
	t.Helper()
	n, err := f.seats.CountFree(context.Background(), 101)
	require.NoError(t, err)
	return n
}

func (f *fixture) pending(t *testing.T) []model.Booking {
	t.Helper()
	out, err := f.bookings.ListByStatus(context.Background(), model.BookingPending, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	return out
}

func req(user, event int64, count int) booking.CreateBookingRequest {
	return booking.CreateBookingRequest{UserID: user, EventID: event, TicketCount: count}
}

func TestCreateBooking_Success(t *testing.T) {
	f := newFixture(t, 10)

	b, err := f.coord.CreateBooking(context.Background(), req(1, 101, 3))

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Equal(t, []int{1, 2, 3}, b.SeatNumbers)
	assert.Equal(t, 3, b.TicketCount)
	assert.Equal(t, 7, f.free(t))
	f.notifier.AssertCalled(t, "BookingConfirmed", mock.Anything, mock.MatchedBy(func(got *model.Booking) bool {
		return got.ID == b.ID
	}))
}

func TestCreateBooking_InvalidInput(t *testing.T) {
	f := newFixture(t, 10)
	for _, r := range []booking.CreateBookingRequest{req(0, 101, 1), req(1, 0, 1), req(1, 101, 0), req(1, 101, -2)} {
		_, err := f.coord.CreateBooking(context.Background(), r)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	}
	assert.Equal(t, 0, f.inv.reserveCalls)
}

func TestCreateBooking_UserNotFound(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.coord.CreateBooking(context.Background(), req(99, 101, 1))

	assert.ErrorIs(t, err, model.ErrUserNotFound)
	assert.Equal(t, 0, f.inv.reserveCalls)
	assert.Empty(t, f.pending(t))
}

func TestCreateBooking_EventNotFound(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.coord.CreateBooking(context.Background(), req(1, 404, 1))

	assert.ErrorIs(t, err, model.ErrEventNotFound)
	assert.Equal(t, model.KindEventNotFound, model.KindOf(err))
}

func TestCreateBooking_UserDirectoryUnavailable(t *testing.T) {
	f := newFixture(t, 10)
	users := &MockUserDirectory{}
	users.On("GetUser", mock.Anything, int64(1)).Return(nil, errTransport)
	coord := booking.NewCoordinator(users, f.inv, f.ledger,
		booking.WithRetryPolicy(booking.RetryPolicy{MaxTries: 2, InitialInterval: time.Millisecond}))

	_, err := coord.CreateBooking(context.Background(), req(1, 101, 1))

	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	users.AssertNumberOfCalls(t, "GetUser", 2)
	assert.Equal(t, 10, f.free(t))
}

// Capacity-2 walkthrough: book everything, fail, cancel, rebook.
func TestCreateBooking_CapacityScenario(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	a, err := f.coord.CreateBooking(ctx, req(1, 101, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, a.SeatNumbers)
	assert.Equal(t, 0, f.free(t))

	_, err = f.coord.CreateBooking(ctx, req(2, 101, 1))
	var insufficient *model.InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Requested)
	assert.Equal(t, 0, insufficient.Free)
	assert.Empty(t, f.pending(t))

	cancelled, err := f.coord.CancelBooking(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Equal(t, 2, f.free(t))

	stored, err := f.coord.GetBooking(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, stored.Status)

	_, err = f.coord.CancelBooking(ctx, a.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyCancelled)

	retried, err := f.coord.CreateBooking(ctx, req(2, 101, 1))
	require.NoError(t, err)
	require.Len(t, retried.SeatNumbers, 1)
	assert.Contains(t, []int{1, 2}, retried.SeatNumbers[0])
	assert.Equal(t, 1, f.free(t))
}

func TestCreateBooking_ConfirmFailureIsCompensated(t *testing.T) {
	f := newFixture(t, 5)
	f.ledger.failStatus = model.BookingConfirmed

	_, err := f.coord.CreateBooking(context.Background(), req(1, 101, 2))

	assert.ErrorIs(t, err, model.ErrPersistenceFailure)
	assert.Equal(t, 5, f.free(t), "seats are released")
	assert.Empty(t, f.pending(t), "pending booking is deleted")
	assert.Equal(t, 1, f.inv.releaseCalls)
	f.notifier.AssertNotCalled(t, "BookingConfirmed", mock.Anything, mock.Anything)
}

func TestCreateBooking_ConfirmCommittedDespiteError(t *testing.T) {
	f := newFixture(t, 5)
	f.ledger.failStatus = model.BookingConfirmed
	f.ledger.commitFailed = true

	b, err := f.coord.CreateBooking(context.Background(), req(1, 101, 2))

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Equal(t, []int{1, 2}, b.SeatNumbers)
	assert.Equal(t, 3, f.free(t), "confirmed seats stay held")
	assert.Equal(t, 0, f.inv.releaseCalls)
	assert.Empty(t, f.pending(t))
}

func TestCreateBooking_ConfirmedBookingKeepsSeatsWhenRereadFails(t *testing.T) {
	f := newFixture(t, 5)
	f.ledger.failStatus = model.BookingConfirmed
	f.ledger.commitFailed = true
	f.ledger.getFailures = 1 // the read right after the failed confirm

	_, err := f.coord.CreateBooking(context.Background(), req(1, 101, 2))

	var compErr *model.CompensationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "reserve-seats", compErr.Step)
	assert.ErrorIs(t, compErr.Err, model.ErrInvalidTransition)
	assert.Equal(t, 0, f.inv.releaseCalls)
	assert.Equal(t, 3, f.free(t))

	stored, err := f.ledger.Ledger.Get(context.Background(), compErr.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, stored.Status)
	assert.Equal(t, []int{1, 2}, stored.SeatNumbers)
}

func TestCreateBooking_DeleteFailureMarksFailed(t *testing.T) {
	f := newFixture(t, 5)
	f.ledger.failStatus = model.BookingConfirmed
	f.ledger.failDelete = true

	_, err := f.coord.CreateBooking(context.Background(), req(1, 101, 1))

	assert.ErrorIs(t, err, model.ErrPersistenceFailure)
	assert.Empty(t, f.pending(t))
	failed, lerr := f.bookings.ListByStatus(context.Background(), model.BookingFailed, time.Now().Add(time.Hour), 0)
	require.NoError(t, lerr)
	assert.Len(t, failed, 1)
}

func TestCreateBooking_CompensationFailure(t *testing.T) {
	f := newFixture(t, 5)
	f.ledger.failStatus = model.BookingConfirmed
	f.inv.releaseFailures = 10

	_, err := f.coord.CreateBooking(context.Background(), req(1, 101, 2))

	var compErr *model.CompensationError
	require.ErrorAs(t, err, &compErr)
	assert.ErrorIs(t, err, model.ErrCompensationFailure)
	assert.Equal(t, model.KindCompensationFailure, model.KindOf(err))
	assert.Equal(t, int64(101), compErr.EventID)
	assert.Equal(t, "reserve-seats", compErr.Step)
	assert.ErrorIs(t, compErr.Trigger, model.ErrPersistenceFailure)

	// the pending booking survives as the anchor for repair
	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, compErr.BookingID, pending[0].ID)
	assert.Equal(t, 3, f.free(t))
}

func TestCreateBooking_AmbiguousReserveIsRetried(t *testing.T) {
	f := newFixture(t, 5)
	f.inv.reserveFailures = 1
	f.inv.reserveCommits = true

	b, err := f.coord.CreateBooking(context.Background(), req(1, 101, 2))

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, b.SeatNumbers)
	assert.Equal(t, 2, f.inv.reserveCalls)
	assert.Equal(t, 3, f.free(t), "retry must not double-allocate")
}

func TestCreateBooking_ReserveUnavailable(t *testing.T) {
	f := newFixture(t, 5)
	f.inv.reserveFailures = 10

	_, err := f.coord.CreateBooking(context.Background(), req(1, 101, 2))

	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, errTransport)
	assert.Equal(t, 3, f.inv.reserveCalls)
	assert.Equal(t, 0, f.inv.releaseCalls, "a failed reserve is not compensated")
	assert.Empty(t, f.pending(t))
	assert.Equal(t, 5, f.free(t))
}

func TestCreateBooking_RunsToCompletionAfterCallerCancels(t *testing.T) {
	f := newFixture(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := f.coord.CreateBooking(ctx, req(1, 101, 1))

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
}

func TestCreateBooking_NotifierFailureIgnored(t *testing.T) {
	f := newFixture(t, 5)
	n := &MockNotifier{}
	n.On("BookingConfirmed", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	coord := booking.NewCoordinator(f.users, f.inv, f.ledger, booking.WithNotifier(n))

	b, err := coord.CreateBooking(context.Background(), req(1, 101, 1))

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	n.AssertExpectations(t)
}

func TestCreateBooking_ConcurrentNoOversell(t *testing.T) {
	const capacity, callers = 50, 64
	f := newFixture(t, capacity)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed []*model.Booking
		rejected  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := f.coord.CreateBooking(context.Background(), req(1, 101, 1))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, model.ErrInsufficientInventory)
				rejected++
				return
			}
			confirmed = append(confirmed, b)
		}()
	}
	wg.Wait()

	assert.Len(t, confirmed, capacity)
	assert.Equal(t, callers-capacity, rejected)
	assert.Equal(t, 0, f.free(t))

	var seen []int
	for _, b := range confirmed {
		require.Len(t, b.SeatNumbers, 1)
		seen = append(seen, b.SeatNumbers...)
	}
	sort.Ints(seen)
	for i, n := range seen {
		assert.Equal(t, i+1, n, "seat sets must be disjoint")
	}
	assert.Empty(t, f.pending(t))
}

func TestCancelBooking_NotFound(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.coord.CancelBooking(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, model.ErrBookingNotFound)
}

func TestCancelBooking_ReleaseUnavailableKeepsConfirmed(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	b, err := f.coord.CreateBooking(ctx, req(1, 101, 2))
	require.NoError(t, err)

	f.inv.releaseFailures = 10
	_, err = f.coord.CancelBooking(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)

	stored, err := f.coord.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, stored.Status)
	assert.Equal(t, 3, f.free(t))

	// retry succeeds once the inventory is back
	f.inv.releaseFailures = 0
	_, err = f.coord.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, f.free(t))
	f.notifier.AssertCalled(t, "BookingCancelled", mock.Anything, mock.Anything)
}

// rejectingInventory refuses every release with a domain error.
type rejectingInventory struct {
	*flakyInventory
}

func (r *rejectingInventory) Release(ctx context.Context, eventID int64, bookingID string) (int, error) {
	return 0, model.ErrEventNotFound
}

func TestCancelBooking_ReleaseRejectedKeepsConfirmed(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	b, err := f.coord.CreateBooking(ctx, req(1, 101, 2))
	require.NoError(t, err)

	coord := booking.NewCoordinator(f.users, &rejectingInventory{f.inv}, f.ledger,
		booking.WithNotifier(f.notifier),
		booking.WithRetryPolicy(booking.RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond}))

	_, err = coord.CancelBooking(ctx, b.ID)

	assert.ErrorIs(t, err, model.ErrReleaseRejected)
	assert.Equal(t, model.KindReleaseRejected, model.KindOf(err))
	stored, err := f.coord.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, stored.Status)
	assert.Equal(t, []int{1, 2}, stored.SeatNumbers)
	assert.Equal(t, 3, f.free(t))
	f.notifier.AssertNotCalled(t, "BookingCancelled", mock.Anything, mock.Anything)
}

func TestCancelBooking_FailedBookingIsInvalidTransition(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	id, err := f.ledger.Create(ctx, 1, 101, 1)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Ledger.SetStatus(ctx, id, model.BookingFailed, nil))

	_, err = f.coord.CancelBooking(ctx, id)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCancelBooking_ConcurrentCancelsReleaseOnce(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	b, err := f.coord.CreateBooking(ctx, req(1, 101, 4))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.CancelBooking(ctx, b.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, model.ErrAlreadyCancelled)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 4, f.free(t))
}
