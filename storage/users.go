package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/LucasAro/JuscashCase/domain"
)

const userColumns = `id, nome, email, senha, created_at, updated_at`

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                domain.User
		created, updated timeValue
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created, &updated); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = created.Time.UTC()
	u.UpdatedAt = updated.Time.UTC()
	return u, nil
}

// CreateUser inserts a user. The email must already be normalized.
// Returns domain.ErrAlreadyExists when the email is taken.
func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	const op = "storage.CreateUser"

	d := s.dialect
	now := d.timeArg(time.Now())
	q := fmt.Sprintf(`INSERT INTO users (nome, email, senha, created_at, updated_at)
VALUES (%s, %s, %s, %s, %s) RETURNING %s`,
		d.placeholder(1), d.placeholder(2), d.placeholder(3), d.placeholder(4), d.placeholder(5), userColumns)

	out, err := scanUser(s.db.queryRow(ctx, q, u.Name, u.Email, u.PasswordHash, now, now))
	if err != nil {
		if d.uniqueViolation(err) {
			return domain.User{}, fmt.Errorf("%s: %w", op, domain.ErrAlreadyExists)
		}
		return domain.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// UserByEmail looks a user up by normalized email.
func (s *Store) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	const op = "storage.UserByEmail"

	q := "SELECT " + userColumns + " FROM users WHERE email = " + s.dialect.placeholder(1)
	u, err := scanUser(s.db.queryRow(ctx, q, email))
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
