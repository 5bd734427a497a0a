package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/event-booking/internal/model"
)

// UserRepo is the MySQL-backed user directory.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// ErrEmailExists is returned when inserting a user whose email is taken.
var ErrEmailExists = errors.New("email already exists")

// Create inserts a user.  A zero u.ID lets the database assign one.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	var (
		res sql.Result
		err error
	)
	if u.ID > 0 {
		res, err = r.DB.ExecContext(ctx,
			"INSERT INTO users (id, name, email, phone) VALUES (?,?,?,?)", u.ID, u.Name, email, u.Phone)
	} else {
		res, err = r.DB.ExecContext(ctx,
			"INSERT INTO users (name, email, phone) VALUES (?,?,?)", u.Name, email, u.Phone)
	}
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrEmailExists
		}
		return err
	}
	if u.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u.ID = id
	}
	u.Email = email
	return nil
}

// GetUser fetches a user by id or returns model.ErrUserNotFound.
func (r *UserRepo) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,email,phone FROM users WHERE id=? LIMIT 1", id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
