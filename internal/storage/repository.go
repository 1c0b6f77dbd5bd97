package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kharcha/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists users, expenses and sessions in a single
// file-backed SQLite database. Every write is a single statement, relying on
// SQLite's own atomicity; concurrent app instances may share the file.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation detects the sqlite unique-constraint failure for the
// username column without depending on driver error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash, fullName string, role core.Role) (*core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, full_name, role) VALUES (?, ?, ?, ?)`,
		username, passwordHash, fullName, string(role),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", id, "username", username, "role", role)
	return r.GetUserByID(ctx, id)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, full_name, role, created_at FROM users WHERE id = ?`, id)

	var u core.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	u.Role = core.Role(role)
	return &u, nil
}

// GetUserByUsername returns the user together with the stored password hash
// for credential verification.
func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (*core.User, string, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, full_name, role, created_at FROM users WHERE username = ?`, username)

	var u core.User
	var hash, role string
	if err := row.Scan(&u.ID, &u.Username, &hash, &u.FullName, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", core.ErrNotFound
		}
		return nil, "", fmt.Errorf("get user by username: %w", err)
	}
	u.Role = core.Role(role)
	return &u, hash, nil
}

func (r *SQLiteRepository) PasswordHash(ctx context.Context, userID int64) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE id = ?`, userID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get password hash: %w", err)
	}
	return hash, nil
}

func (r *SQLiteRepository) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	return r.updateUserColumn(ctx, userID, "password_hash", hash)
}

func (r *SQLiteRepository) UpdateUsername(ctx context.Context, userID int64, username string) error {
	err := r.updateUserColumn(ctx, userID, "username", username)
	if isUniqueViolation(err) {
		return core.ErrUsernameTaken
	}
	return err
}

func (r *SQLiteRepository) UpdateFullName(ctx context.Context, userID int64, fullName string) error {
	return r.updateUserColumn(ctx, userID, "full_name", fullName)
}

func (r *SQLiteRepository) updateUserColumn(ctx context.Context, userID int64, column, value string) error {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s = ? WHERE id = ?`, column), value, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("update user %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteUser removes only the user row. Expenses keep their user_id and
// become orphaned on purpose.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	// Their sessions are gone, their expenses stay.
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		slog.WarnContext(ctx, "Failed to clear sessions of deleted user", "user_id", userID, "error", err)
	}

	slog.InfoContext(ctx, "User deleted, expenses preserved", "user_id", userID)
	return nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, full_name, role, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = core.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// --- expenses ---

// ExpenseFilter narrows expense listings. Zero values mean "no filter".
type ExpenseFilter struct {
	Range    *core.DateRange
	Category string
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount_cents, purpose, category, date) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Amount.Cents, e.Purpose, e.Category, e.Date.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", id,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents,
		"category", e.Category,
		"date", e.Date.String())
	return id, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount_cents, purpose, category, date, created_at FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount_cents = ?, purpose = ?, category = ?, date = ? WHERE id = ?`,
		e.Amount.Cents, e.Purpose, e.Category, e.Date.String(), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ListExpenses returns one user's expenses newest first, optionally narrowed
// by date range and category.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, f ExpenseFilter) ([]core.Expense, error) {
	query := `SELECT id, user_id, amount_cents, purpose, category, date, created_at FROM expenses WHERE user_id = ?`
	args := []any{userID}

	if f.Range != nil {
		query += ` AND date BETWEEN ? AND ?`
		args = append(args, f.Range.Start.String(), f.Range.End.String())
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	query += ` ORDER BY date DESC, id DESC`

	return r.queryExpenses(ctx, query, args...)
}

// ListExpensesForUsers returns expenses of the given users (all users when
// userIDs is empty) for the combined partner/admin views. Records owned by
// deleted users are included: the rows outlive their owner.
func (r *SQLiteRepository) ListExpensesForUsers(ctx context.Context, userIDs []int64, rng *core.DateRange) ([]core.Expense, error) {
	query := `SELECT id, user_id, amount_cents, purpose, category, date, created_at FROM expenses`
	var where []string
	var args []any

	if len(userIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(userIDs)), ", ")
		where = append(where, `user_id IN (`+placeholders+`)`)
		for _, id := range userIDs {
			args = append(args, id)
		}
	}
	if rng != nil {
		where = append(where, `date BETWEEN ? AND ?`)
		args = append(args, rng.Start.String(), rng.End.String())
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY date DESC, id DESC`

	return r.queryExpenses(ctx, query, args...)
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func scanExpense(scan func(...any) error) (*core.Expense, error) {
	var e core.Expense
	var dateStr string
	if err := scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Purpose, &e.Category, &dateStr, &e.CreatedAt); err != nil {
		return nil, err
	}
	d, err := core.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("parse stored date %q: %w", dateStr, err)
	}
	e.Date = d
	return &e, nil
}

// --- sessions ---

// Session couples a token with its user and expiry bookkeeping.
type Session struct {
	Token        string
	User         core.User
	ExpiresAt    time.Time
	LastActivity time.Time
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)`,
		token, userID, expiresAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession resolves a token to its user, rejecting expired sessions.
func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.token, s.expires_at, s.last_activity, u.id, u.username, u.full_name, u.role, u.created_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, time.Now().UTC())

	var s Session
	var role string
	if err := row.Scan(&s.Token, &s.ExpiresAt, &s.LastActivity,
		&s.User.ID, &s.User.Username, &s.User.FullName, &role, &s.User.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.User.Role = core.Role(role)
	return &s, nil
}

func (r *SQLiteRepository) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ?, last_activity = ? WHERE token = ?`,
		newExpiresAt.UTC(), time.Now().UTC(), token,
	)
	if err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}
