package repository // repository defines data access for events and seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/event-booking/internal/inventory"
	"github.com/iliyamo/event-booking/internal/model"
)

// SeatRepo stores events and their seats in MySQL.  It implements
// inventory.Store: the per-event lock is the event row itself, taken
// with SELECT ... FOR UPDATE, so every process sharing the database
// serializes writers of the same event.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// DB exposes the underlying handle.
func (r *SeatRepo) DB() *sql.DB { return r.db }

// GetEvent fetches an event by id.
func (r *SeatRepo) GetEvent(ctx context.Context, eventID int64) (*model.Event, error) {
	const q = `SELECT id, name, total_seats, created_at FROM events WHERE id = ?`
	var ev model.Event
	err := r.db.QueryRowContext(ctx, q, eventID).Scan(&ev.ID, &ev.Name, &ev.TotalSeats, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// CountFree returns the number of FREE seats of an event.
func (r *SeatRepo) CountFree(ctx context.Context, eventID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM seats WHERE event_id = ? AND status = 'FREE'`
	var n int
	if err := r.db.QueryRowContext(ctx, q, eventID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListSeats returns every seat of an event ordered by seat number.
func (r *SeatRepo) ListSeats(ctx context.Context, eventID int64) ([]model.Seat, error) {
	const q = `SELECT event_id, seat_number, status, booking_id
	           FROM seats WHERE event_id = ? ORDER BY seat_number`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Seat
	for rows.Next() {
		var (
			s   model.Seat
			bid sql.NullString
		)
		if err := rows.Scan(&s.EventID, &s.SeatNumber, &s.Status, &bid); err != nil {
			return nil, err
		}
		if bid.Valid {
			v := bid.String
			s.BookingID = &v
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// WithEventLock opens a transaction, locks the event row and runs fn.
// The transaction commits only when fn succeeds.
func (r *SeatRepo) WithEventLock(ctx context.Context, eventID int64, fn func(ctx context.Context, tx inventory.SeatTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = ? FOR UPDATE`, eventID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrEventNotFound
		}
		return err
	}

	if err := fn(ctx, &seatTx{tx: tx, eventID: eventID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// seatTx runs seat queries inside a locked event transaction.
type seatTx struct {
	tx      *sql.Tx
	eventID int64
}

func (s *seatTx) SeatsOwnedBy(ctx context.Context, bookingID string) ([]int, error) {
	const q = `SELECT seat_number FROM seats
	           WHERE event_id = ? AND booking_id = ? AND status = 'RESERVED'
	           ORDER BY seat_number`
	return s.seatNumbers(ctx, q, s.eventID, bookingID)
}

func (s *seatTx) FreeSeats(ctx context.Context, limit int) ([]int, error) {
	const q = `SELECT seat_number FROM seats
	           WHERE event_id = ? AND status = 'FREE'
	           ORDER BY seat_number LIMIT ?`
	return s.seatNumbers(ctx, q, s.eventID, limit)
}

func (s *seatTx) CountFree(ctx context.Context) (int, error) {
	var n int
	err := s.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seats WHERE event_id = ? AND status = 'FREE'`, s.eventID).Scan(&n)
	return n, err
}

func (s *seatTx) MarkReserved(ctx context.Context, seatNumbers []int, bookingID string) error {
	if len(seatNumbers) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seatNumbers)), ",")
	q := `UPDATE seats SET status = 'RESERVED', booking_id = ?, updated_at = CURRENT_TIMESTAMP(3)
	      WHERE event_id = ? AND status = 'FREE' AND seat_number IN (` + placeholders + `)`
	args := make([]interface{}, 0, len(seatNumbers)+2)
	args = append(args, bookingID, s.eventID)
	for _, n := range seatNumbers {
		args = append(args, n)
	}
	res, err := s.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(affected) != len(seatNumbers) {
		return fmt.Errorf("%w: %d of %d seats were no longer free",
			model.ErrReservationConflict, len(seatNumbers)-int(affected), len(seatNumbers))
	}
	return nil
}

func (s *seatTx) MarkFree(ctx context.Context, bookingID string) (int, error) {
	const q = `UPDATE seats SET status = 'FREE', booking_id = NULL, updated_at = CURRENT_TIMESTAMP(3)
	           WHERE event_id = ? AND booking_id = ? AND status = 'RESERVED'`
	res, err := s.tx.ExecContext(ctx, q, s.eventID, bookingID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *seatTx) seatNumbers(ctx context.Context, q string, args ...interface{}) ([]int, error) {
	rows, err := s.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
