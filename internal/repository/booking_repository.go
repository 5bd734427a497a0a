package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// BookingRepo persists bookings in MySQL.  Status changes are single-row
// compare-and-set updates on the previous status, so two writers racing on
// the same booking cannot both win.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB returns the underlying handle.
func (r *BookingRepo) DB() *sql.DB { return r.db }

// Insert stores a new booking.  CreatedAt and UpdatedAt are set by the
// caller so that memory and MySQL stores behave the same.
func (r *BookingRepo) Insert(ctx context.Context, b *model.Booking) error {
	seats, err := encodeSeats(b.SeatNumbers)
	if err != nil {
		return err
	}
	const q = `INSERT INTO bookings (id, user_id, event_id, ticket_count, status, seat_numbers, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q, b.ID, b.UserID, b.EventID, b.TicketCount, string(b.Status), seats, b.CreatedAt, b.UpdatedAt)
	return err
}

// GetByID fetches a booking or returns model.ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	const q = `SELECT id, user_id, event_id, ticket_count, status, seat_numbers, created_at, updated_at
	           FROM bookings WHERE id = ?`
	var (
		b     model.Booking
		seats sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.UserID, &b.EventID, &b.TicketCount, &b.Status, &seats, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrBookingNotFound
		}
		return nil, err
	}
	if seats.Valid && seats.String != "" {
		if err := json.Unmarshal([]byte(seats.String), &b.SeatNumbers); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// UpdateStatus moves a booking from status from to status to, replacing its
// seat numbers.  It returns model.ErrBookingNotFound when the row is gone and
// model.ErrInvalidTransition when the row is no longer in status from.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, seatNumbers []int, at time.Time) error {
	seats, err := encodeSeats(seatNumbers)
	if err != nil {
		return err
	}
	const q = `UPDATE bookings SET status = ?, seat_numbers = ?, updated_at = ?
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(to), seats, at, id, string(from))
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id)
}

// DeletePending removes a booking that is still PENDING.
func (r *BookingRepo) DeletePending(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ? AND status = 'PENDING'`, id)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id)
}

// ListByStatus returns bookings in the given status older than before,
// oldest first.  Used to find bookings a crashed saga left PENDING.
func (r *BookingRepo) ListByStatus(ctx context.Context, status model.BookingStatus, before time.Time, limit int) ([]model.Booking, error) {
	const q = `SELECT id, user_id, event_id, ticket_count, status, created_at, updated_at
	           FROM bookings WHERE status = ? AND created_at < ?
	           ORDER BY created_at LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, string(status), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.EventID, &b.TicketCount, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepo) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return model.ErrBookingNotFound
	}
	return model.ErrInvalidTransition
}

func encodeSeats(seats []int) (interface{}, error) {
	if len(seats) == 0 {
		return nil, nil
	}
	bs, err := json.Marshal(seats)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}
