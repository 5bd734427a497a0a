package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate.  Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGINT       NOT NULL AUTO_INCREMENT,
		name       VARCHAR(255) NOT NULL,
		email      VARCHAR(255) NOT NULL,
		phone      VARCHAR(32)  NOT NULL DEFAULT '',
		created_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		PRIMARY KEY (id),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS events (
		id          BIGINT       NOT NULL AUTO_INCREMENT,
		name        VARCHAR(255) NOT NULL,
		total_seats INT          NOT NULL,
		created_at  DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		PRIMARY KEY (id),
		CHECK (total_seats > 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seats (
		event_id    BIGINT      NOT NULL,
		seat_number INT         NOT NULL,
		status      VARCHAR(16) NOT NULL DEFAULT 'FREE',
		booking_id  CHAR(36)    NULL,
		updated_at  DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		PRIMARY KEY (event_id, seat_number),
		KEY idx_seats_booking (event_id, booking_id),
		KEY idx_seats_status (event_id, status),
		CONSTRAINT fk_seats_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id           CHAR(36)    NOT NULL,
		user_id      BIGINT      NOT NULL,
		event_id     BIGINT      NOT NULL,
		ticket_count INT         NOT NULL,
		status       VARCHAR(16) NOT NULL,
		seat_numbers JSON        NULL,
		created_at   DATETIME(3) NOT NULL,
		updated_at   DATETIME(3) NOT NULL,
		PRIMARY KEY (id),
		KEY idx_bookings_status (status, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables used by the booking and inventory services.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
