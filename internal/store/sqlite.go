package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Nithesh414/Bloom-Alert/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist or is not owned by the caller.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a UNIQUE constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Store persists users, reports and sessions in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an open database. A nil logger discards output.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Open opens the SQLite database at path. Pragmas go in the DSN so every pooled
// connection gets WAL, a busy timeout and foreign keys. ":memory:" is limited to one
// connection so every query sees the same database.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		if code&0xff != sqlite3.SQLITE_CONSTRAINT {
			return false
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser inserts a user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (username, password) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %q: %w", username, ErrDuplicate)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("user id: %w", err)
	}
	return models.User{ID: id, Username: username, Password: passwordHash}, nil
}

// GetUserByUsername returns ErrNotFound when no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, username, password FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

const reportColumns = `id, user_id, image_filename, location, date_time, flower_name, intensity`

func scanReport(row interface{ Scan(...any) error }) (models.Report, error) {
	var r models.Report
	err := row.Scan(&r.ID, &r.UserID, &r.ImageFilename, &r.Location, &r.DateTime, &r.FlowerName, &r.Intensity)
	return r, err
}

// CreateReport inserts r and returns it with its new ID.
func (s *Store) CreateReport(ctx context.Context, r models.Report) (models.Report, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (user_id, image_filename, location, date_time, flower_name, intensity)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.UserID, r.ImageFilename, r.Location, r.DateTime, r.FlowerName, r.Intensity)
	if err != nil {
		return models.Report{}, fmt.Errorf("insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Report{}, fmt.Errorf("report id: %w", err)
	}
	r.ID = id
	return r, nil
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]models.Report, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ListReports returns every report in insertion order.
func (s *Store) ListReports(ctx context.Context) ([]models.Report, error) {
	return s.queryReports(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY id`)
}

// ListReportsByUser returns the user's reports, newest date_time first, ties by id descending.
func (s *Store) ListReportsByUser(ctx context.Context, userID int64) ([]models.Report, error) {
	return s.queryReports(ctx, `SELECT `+reportColumns+` FROM reports WHERE user_id = ? ORDER BY date_time DESC, id DESC`, userID)
}

// GetReport returns ErrNotFound when the report is absent or owned by another user.
func (s *Store) GetReport(ctx context.Context, userID, id int64) (models.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Report{}, fmt.Errorf("query report: %w", err)
	}
	return r, nil
}

// UpdateReport replaces the text fields of a report owned by userID.
func (s *Store) UpdateReport(ctx context.Context, userID, id int64, f models.ReportFields) (models.Report, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET location = ?, date_time = ?, flower_name = ?, intensity = ?
		WHERE id = ? AND user_id = ?
	`, f.Location, f.DateTime, f.FlowerName, f.Intensity, id, userID)
	if err != nil {
		return models.Report{}, fmt.Errorf("update report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Report{}, fmt.Errorf("update report: %w", err)
	}
	if n == 0 {
		return models.Report{}, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	return s.GetReport(ctx, userID, id)
}

// CreateSession stores a session. Times are kept as unix seconds.
func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, username, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, sess.Token, sess.UserID, sess.Username, sess.CreatedAt.Unix(), sess.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns ErrNotFound for unknown tokens. Expiry is checked by the caller.
func (s *Store) GetSession(ctx context.Context, token string) (models.Session, error) {
	var (
		sess               models.Session
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT token, user_id, username, created_at, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&sess.Token, &sess.UserID, &sess.Username, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("query session: %w", err)
	}
	sess.CreatedAt = time.Unix(created, 0).UTC()
	sess.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return sess, nil
}

// DeleteSession removes a session; unknown tokens are not an error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions whose expiry is at or before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if n > 0 {
		s.logger.Debug("purged expired sessions", zap.Int64("count", n))
	}
	return n, nil
}
