package repo

import (
	"context"
	"database/sql"
	"strings"

	"villagedesk/internal/domain"
)

const userColumns = `id,name,email,phone,role,created_at`

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,name,email,phone,role,password_hash,created_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Name, strings.ToLower(u.Email), nullable(u.Phone), u.Role, passwordHash, u.CreatedAt)
	return err
}

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var phone sql.NullString
	err := scan(&u.ID, &u.Name, &u.Email, &phone, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if phone.Valid {
		u.Phone = phone.String
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

// GetUserByEmail also returns the stored password hash for credential checks.
func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,email,phone,role,password_hash,created_at FROM users WHERE email=?`,
		strings.ToLower(strings.TrimSpace(email)))
	var u domain.User
	var phone sql.NullString
	var hash string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &phone, &u.Role, &hash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, "", ErrNotFound
	}
	if err != nil {
		return u, "", err
	}
	if phone.Valid {
		u.Phone = phone.String
	}
	return u, hash, nil
}

func (r Repo) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUserRole(ctx context.Context, tx *sql.Tx, id, role string) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET role=? WHERE id=?`, role, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func (r Repo) CountUsersByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE role=?`, role).Scan(&n)
	return n, err
}
