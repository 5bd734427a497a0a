package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/event-booking/internal/model"
)

// seatInsertBatch caps the rows of one multi-row INSERT.
const seatInsertBatch = 500

// EventRepo creates events together with their seats.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// CreateEvent inserts an event and seats 1..TotalSeats in one transaction.
// When ev.ID is zero the database assigns it; otherwise the given id is
// used.  On success ev.ID and ev.CreatedAt are populated.
func (r *EventRepo) CreateEvent(ctx context.Context, ev *model.Event) error {
	if ev.TotalSeats <= 0 {
		return fmt.Errorf("%w: total_seats must be positive", model.ErrInvalidInput)
	}
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

	var res sql.Result
	if ev.ID > 0 {
		res, err = tx.ExecContext(ctx, `INSERT INTO events (id, name, total_seats) VALUES (?, ?, ?)`, ev.ID, ev.Name, ev.TotalSeats)
	} else {
		res, err = tx.ExecContext(ctx, `INSERT INTO events (name, total_seats) VALUES (?, ?)`, ev.Name, ev.TotalSeats)
	}
	if err != nil {
		return err
	}
	if ev.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		ev.ID = id
	}

	if err := createSeatsTx(ctx, tx, ev.ID, ev.TotalSeats); err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx, `SELECT created_at FROM events WHERE id = ?`, ev.ID).Scan(&ev.CreatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// EventExists reports whether an event row with the given id is present.
func (r *EventRepo) EventExists(ctx context.Context, eventID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, eventID).Scan(&n)
	return n > 0, err
}

// createSeatsTx inserts FREE seats numbered 1..total in batches.
func createSeatsTx(ctx context.Context, tx *sql.Tx, eventID int64, total int) error {
	for start := 1; start <= total; start += seatInsertBatch {
		end := start + seatInsertBatch - 1
		if end > total {
			end = total
		}
		var sb strings.Builder
		sb.WriteString(`INSERT INTO seats (event_id, seat_number, status) VALUES `)
		args := make([]interface{}, 0, (end-start+1)*2)
		for n := start; n <= end; n++ {
			if n > start {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, 'FREE')")
			args = append(args, eventID, n)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}
	return nil
}
